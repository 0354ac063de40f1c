package controller

import (
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/service"
	"quiz_assessment_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TestResultController struct {
	Calculator *service.TestResultCalculationService
	Service    *service.TestResultService
	// TimeoutMinutes 返回当前生效的超时分钟数，随配置热更新
	TimeoutMinutes func() int
}

func NewTestResultController(calc *service.TestResultCalculationService, svc *service.TestResultService, timeoutMinutes func() int) *TestResultController {
	return &TestResultController{Calculator: calc, Service: svc, TimeoutMinutes: timeoutMinutes}
}

// @Summary 计算作答成绩
// @Description 服务不可用时返回状态为 ERROR 的成绩
// @Tags 教师-成绩
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CalculateResultRequest true "计算参数"
// @Success 200 {object} util.Response{data=service.TestResultResponse}
// @Router /api/teacher/test-results/calculate [post]
func (c *TestResultController) Calculate(ctx *gin.Context) {
	var req service.CalculateResultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	var passing *decimal.Decimal
	if req.PassingScore != nil {
		d := decimal.NewFromFloat(*req.PassingScore)
		passing = &d
	}

	result, err := c.Calculator.CalculateResult(ctx.Request.Context(), req.QuizAttemptID, passing, req.ForceRecalculation)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, service.NewTestResultResponse(result))
}

// canView 学生只能看自己的成绩
func canView(user *util.Claims, r *model.TestResult) bool {
	return user.UserID == r.StudentID || user.Role == model.Teacher || user.IsAdmin()
}

// @Summary 成绩详情
// @Tags 成绩
// @Produce json
// @Security BearerAuth
// @Param id path int true "成绩ID"
// @Success 200 {object} util.Response{data=service.TestResultResponse}
// @Router /api/test-results/{id} [get]
func (c *TestResultController) GetResult(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.Service.GetResultByID(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if !canView(user, result) {
		util.Forbidden(ctx)
		return
	}
	util.Success(ctx, service.NewTestResultResponse(result))
}

// @Summary 按作答查询成绩
// @Tags 成绩
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Success 200 {object} util.Response{data=service.TestResultResponse}
// @Router /api/test-results/attempt/{attemptId} [get]
func (c *TestResultController) GetResultByAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "attemptId")
	if !ok {
		return
	}

	result, err := c.Service.GetResultByAttempt(ctx.Request.Context(), attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if !canView(user, result) {
		util.Forbidden(ctx)
		return
	}
	util.Success(ctx, service.NewTestResultResponse(result))
}

// @Summary 我的成绩
// @Tags 成绩
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/test-results/my [get]
func (c *TestResultController) GetMyResults(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	results, err := c.Service.GetResultsByStudent(ctx.Request.Context(), user.UserID)
	respondResults(ctx, results, err)
}

// @Summary 学生的全部成绩
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/student/{studentId} [get]
func (c *TestResultController) GetStudentResults(ctx *gin.Context) {
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}
	results, err := c.Service.GetResultsByStudent(ctx.Request.Context(), studentID)
	respondResults(ctx, results, err)
}

// @Summary 测验的全部成绩
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/quiz/{quizId} [get]
func (c *TestResultController) GetQuizResults(ctx *gin.Context) {
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}
	results, err := c.Service.GetResultsByQuiz(ctx.Request.Context(), quizID)
	respondResults(ctx, results, err)
}

// @Summary 学生在某测验的成绩
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Param studentId path int true "学生ID"
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/quiz/{quizId}/student/{studentId} [get]
func (c *TestResultController) GetStudentQuizResults(ctx *gin.Context) {
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}
	results, err := c.Service.GetResultsByStudentAndQuiz(ctx.Request.Context(), studentID, quizID)
	respondResults(ctx, results, err)
}

// @Summary 按状态查询成绩
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param status path string true "状态" Enums(IN_PROGRESS, PASSED, FAILED, ERROR, TIMEOUT)
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/status/{status} [get]
func (c *TestResultController) GetResultsByStatus(ctx *gin.Context) {
	status := model.TestResultStatus(ctx.Param("status"))
	results, err := c.Service.GetResultsByStatus(ctx.Request.Context(), status)
	respondResults(ctx, results, err)
}

// @Summary 测验最高分
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Param limit query int false "数量" default(10)
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/quiz/{quizId}/top-scores [get]
func (c *TestResultController) GetTopScores(ctx *gin.Context) {
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}
	limit := util.QueryLimit(ctx, util.DefaultTopLimit, util.MaxPageSize)
	results, err := c.Service.GetTopScoresByQuiz(ctx.Request.Context(), quizID, limit)
	respondResults(ctx, results, err)
}

// @Summary 测验统计
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Success 200 {object} util.Response{data=repository.QuizStatistics}
// @Failure 503 {object} util.Response
// @Router /api/teacher/test-results/quiz/{quizId}/statistics [get]
func (c *TestResultController) GetQuizStatistics(ctx *gin.Context) {
	quizID, ok := paramID(ctx, "quizId")
	if !ok {
		return
	}
	stats, err := c.Service.GetQuizStatistics(ctx.Request.Context(), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// @Summary 按完成时间查询成绩
// @Tags 教师-成绩
// @Produce json
// @Security BearerAuth
// @Param start query string true "开始时间"
// @Param end query string true "结束时间"
// @Success 200 {object} util.Response{data=[]service.TestResultResponse}
// @Router /api/teacher/test-results/range [get]
func (c *TestResultController) GetResultsInRange(ctx *gin.Context) {
	start, err := util.ParseTimeParam(ctx.Query("start"))
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	end, err := util.ParseTimeParam(ctx.Query("end"))
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	results, err := c.Service.GetResultsInDateRange(ctx.Request.Context(), start, end)
	respondResults(ctx, results, err)
}

// @Summary 手动执行超时处理
// @Tags 管理员
// @Produce json
// @Security BearerAuth
// @Param minutes query int false "超时分钟数，默认使用配置"
// @Success 200 {object} util.Response
// @Router /api/admin/test-results/process-timeouts [post]
func (c *TestResultController) ProcessTimeouts(ctx *gin.Context) {
	minutes := c.TimeoutMinutes()
	if raw := ctx.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			util.BadRequest(ctx, "invalid minutes")
			return
		}
		minutes = n
	}

	updated, err := c.Service.ProcessTimedOutAttempts(ctx.Request.Context(), minutes)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"updated": updated, "timeoutMinutes": minutes})
}

func respondResults(ctx *gin.Context, results []model.TestResult, err error) {
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, service.NewTestResultResponses(results))
}
