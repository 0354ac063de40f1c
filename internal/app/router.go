package app

import (
	"quiz_assessment_backend/docs"
	"quiz_assessment_backend/internal/config"
	"quiz_assessment_backend/internal/middleware"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		registerStudentRoutes(authGroup, c)

		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		registerTeacherRoutes(teacher, c)

		admin := authGroup.Group("/admin")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		registerAdminRoutes(admin, c)
	}
}

func registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	// 测验作答
	rg.GET("/quizzes/:quizId", c.quiz.GetQuiz)
	rg.POST("/quizzes/:quizId/attempts", c.attempt.StartAttempt)
	rg.POST("/quizzes/:quizId/submit", c.attempt.SubmitAttempt)
	rg.GET("/courses/:courseId/quizzes", c.quiz.ListCourseQuizzes)
	rg.GET("/attempts/my", c.attempt.GetMyAttempts)
	rg.GET("/attempts/:id", c.attempt.GetAttempt)

	// 成绩
	rg.GET("/test-results/my", c.testResult.GetMyResults)
	rg.GET("/test-results/attempt/:attemptId", c.testResult.GetResultByAttempt)
	rg.GET("/test-results/:id", c.testResult.GetResult)
}

func registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/quizzes", c.quiz.CreateQuiz)
	rg.DELETE("/quizzes/:id", c.quiz.DeactivateQuiz)
	rg.GET("/quizzes/:quizId/attempts", c.attempt.GetQuizAttempts)

	results := rg.Group("/test-results")
	{
		results.POST("/calculate", c.testResult.Calculate)
		results.GET("/student/:studentId", c.testResult.GetStudentResults)
		results.GET("/quiz/:quizId", c.testResult.GetQuizResults)
		results.GET("/quiz/:quizId/student/:studentId", c.testResult.GetStudentQuizResults)
		results.GET("/quiz/:quizId/top-scores", c.testResult.GetTopScores)
		results.GET("/quiz/:quizId/statistics", c.testResult.GetQuizStatistics)
		results.GET("/status/:status", c.testResult.GetResultsByStatus)
		results.GET("/range", c.testResult.GetResultsInRange)
	}
}

func registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/test-results/process-timeouts", c.testResult.ProcessTimeouts)
}
