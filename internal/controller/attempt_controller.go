package controller

import (
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/service"
	"quiz_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.QuizAttemptService
}

func NewAttemptController(svc *service.QuizAttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 开始作答
// @Description 已有进行中的作答时返回该作答
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 201 {object} util.Response{data=service.AttemptResponse}
// @Router /api/quizzes/{quizId}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}

	attempt, err := c.Service.StartAttempt(ctx.Request.Context(), quizID, user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	resp, err := service.NewAttemptResponse(attempt)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, resp)
}

// @Summary 提交作答
// @Tags 测验作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Param body body service.SubmitAttemptReq true "答案列表"
// @Success 200 {object} util.Response{data=service.AttemptResponse}
// @Router /api/quizzes/{quizId}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}

	var req service.SubmitAttemptReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.SubmitAttempt(ctx.Request.Context(), quizID, user.UserID, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	resp, err := service.NewAttemptResponse(attempt)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 我的作答记录
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.AttemptResponse}
// @Router /api/attempts/my [get]
func (c *AttemptController) GetMyAttempts(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	attempts, err := c.Service.GetStudentAttempts(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	c.respondList(ctx, attempts)
}

// @Summary 作答详情
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptResponse}
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.Service.GetAttemptByID(ctx.Request.Context(), id, requester(user))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	resp, err := service.NewAttemptResponse(attempt)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 测验的全部作答（教师）
// @Tags 教师-测验
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 200 {object} util.Response{data=[]service.AttemptResponse}
// @Router /api/teacher/quizzes/{quizId}/attempts [get]
func (c *AttemptController) GetQuizAttempts(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}

	attempts, err := c.Service.GetQuizAttempts(ctx.Request.Context(), quizID, requester(user))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	c.respondList(ctx, attempts)
}

func (c *AttemptController) respondList(ctx *gin.Context, attempts []model.QuizAttempt) {
	resp, err := service.NewAttemptResponses(attempts)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}
