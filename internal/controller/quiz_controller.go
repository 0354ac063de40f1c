package controller

import (
	"quiz_assessment_backend/internal/service"
	"quiz_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Service *service.QuizService
}

func NewQuizController(svc *service.QuizService) *QuizController {
	return &QuizController{Service: svc}
}

// @Summary 创建测验
// @Tags 教师-测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateQuizReq true "测验内容"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Router /api/teacher/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.CreateQuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.Service.CreateQuiz(ctx.Request.Context(), req, requester(user))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// @Summary 停用测验
// @Description 软删除，保留已有作答和成绩
// @Tags 教师-测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/quizzes/{id} [delete]
func (c *QuizController) DeactivateQuiz(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	if err := c.Service.DeactivateQuiz(ctx.Request.Context(), id, requester(user)); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 获取测验（学生视图）
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 200 {object} util.Response{data=service.StudentQuizView}
// @Router /api/quizzes/{quizId} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	id, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}

	view, err := c.Service.GetStudentView(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 课程下的测验
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=[]model.Quiz}
// @Router /api/courses/{courseId}/quizzes [get]
func (c *QuizController) ListCourseQuizzes(ctx *gin.Context) {
	courseID, ok := paramID(ctx, "courseId")
	if !ok {
		return
	}

	quizzes, err := c.Service.ListCourseQuizzes(ctx.Request.Context(), courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, quizzes)
}
