package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz_assessment_backend/internal/config"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/util"
	"quiz_assessment_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "integration-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		JWT:       config.JWTConfig{Secret: testSecret},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
		TestResult: config.TestResultConfig{
			DefaultPassingScore: 70,
			TimeoutMinutes:      30,
			CleanupCron:         "0 */15 * * * *",
			Breaker:             config.BreakerConfig{Name: "integration", MaxRequests: 1, OpenTimeout: time.Minute, ConsecutiveFailures: 5},
			Retry:               config.RetryConfig{MaxAttempts: 1},
		},
		Statistics: config.StatisticsConfig{MaxConcurrent: 2},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := util.RegisterValidators(); err != nil {
		t.Fatalf("validators: %v", err)
	}

	cfg := testConfig()
	a := &App{Config: cfg, DB: db}
	repos := a.initRepositories(db, nil)
	a.services = a.initServices(repos, cfg, nil)
	ctrls := a.initControllers(a.services, db, nil)

	router := gin.New()
	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, cfg)

	return &testServer{t: t, router: router, db: db}
}

func (s *testServer) seedUser(name string, role model.UserRole) uint {
	u := &model.User{Name: name, Email: name + "@example.com", Role: role}
	if err := s.db.Create(u).Error; err != nil {
		s.t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func (s *testServer) token(userID uint, role model.UserRole) string {
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestQuizLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	teacherID := s.seedUser("teacher", model.Teacher)
	studentID := s.seedUser("student", model.Student)
	otherID := s.seedUser("other", model.Student)
	adminID := s.seedUser("admin", model.Admin)

	course := &model.Course{Title: "Go", TeacherID: teacherID}
	if err := s.db.Create(course).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}

	teacher := s.token(teacherID, model.Teacher)
	student := s.token(studentID, model.Student)
	other := s.token(otherID, model.Student)
	admin := s.token(adminID, model.Admin)

	// 创建测验
	code, env := s.do(http.MethodPost, "/api/teacher/quizzes", teacher, map[string]interface{}{
		"title":    "week 1",
		"courseId": course.ID,
		"questions": []map[string]interface{}{
			{"questionText": "pick", "questionType": "SINGLE_CHOICE", "points": 5, "answerOptions": []map[string]interface{}{
				{"optionText": "a", "isCorrect": true}, {"optionText": "b"},
			}},
			{"questionText": "pick many", "questionType": "MULTIPLE_CHOICE", "points": 5, "answerOptions": []map[string]interface{}{
				{"optionText": "c", "isCorrect": true}, {"optionText": "d", "isCorrect": true}, {"optionText": "e"},
			}},
		},
	})
	if code != http.StatusCreated {
		t.Fatalf("create quiz: %d %s", code, env.Message)
	}
	var quiz model.Quiz
	decode(t, env.Data, &quiz)
	single, multi := quiz.Questions[0], quiz.Questions[1]

	// 学生视图不包含正确答案
	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), student, nil)
	if code != http.StatusOK || strings.Contains(string(env.Data), "isCorrect") {
		t.Fatalf("student view: %d %s", code, env.Data)
	}

	code, _ = s.do(http.MethodPost, "/api/teacher/quizzes", student, map[string]interface{}{"title": "x"})
	if code != http.StatusForbidden {
		t.Fatalf("student creating quiz: %d", code)
	}

	// 开始并提交
	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), student, nil)
	if code != http.StatusCreated {
		t.Fatalf("start: %d %s", code, env.Message)
	}
	var attempt struct {
		ID            uint `json:"id"`
		AttemptNumber int  `json:"attemptNumber"`
	}
	decode(t, env.Data, &attempt)
	if attempt.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d", attempt.AttemptNumber)
	}

	submit := map[string]interface{}{"answers": []map[string]interface{}{
		{"questionId": single.ID, "selectedOptionIds": []uint{single.AnswerOptions[0].ID}},
		{"questionId": multi.ID, "selectedOptionIds": []uint{multi.AnswerOptions[1].ID, multi.AnswerOptions[0].ID}},
	}}
	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), student, submit)
	if code != http.StatusOK {
		t.Fatalf("submit: %d %s", code, env.Message)
	}
	var submitted struct {
		Score       string  `json:"score"`
		MaxScore    string  `json:"maxScore"`
		IsCompleted bool    `json:"isCompleted"`
		CompletedAt *string `json:"completedAt"`
	}
	decode(t, env.Data, &submitted)
	if submitted.Score != "10.00" || submitted.MaxScore != "10.00" || !submitted.IsCompleted || submitted.CompletedAt == nil {
		t.Fatalf("submitted = %+v", submitted)
	}

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), student, submit)
	if code != http.StatusNotFound {
		t.Fatalf("double submit: %d, want 404", code)
	}

	// 计算成绩
	code, env = s.do(http.MethodPost, "/api/teacher/test-results/calculate", teacher, map[string]interface{}{"quizAttemptId": attempt.ID})
	if code != http.StatusOK {
		t.Fatalf("calculate: %d %s", code, env.Message)
	}
	var result struct {
		ID                 uint                   `json:"id"`
		Status             model.TestResultStatus `json:"status"`
		Percentage         decimal.Decimal        `json:"percentage"`
		Passed             bool                   `json:"passed"`
		FormattedTimeSpent string                 `json:"formattedTimeSpent"`
	}
	decode(t, env.Data, &result)
	if result.Status != model.ResultPassed || !result.Passed || result.Percentage.StringFixed(2) != "100.00" {
		t.Fatalf("result = %+v", result)
	}

	code, _ = s.do(http.MethodPost, "/api/teacher/test-results/calculate", teacher, map[string]interface{}{"quizAttemptId": attempt.ID, "passingScore": 120})
	if code != http.StatusBadRequest {
		t.Fatalf("passing score over 100: %d", code)
	}

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/test-results/attempt/%d", attempt.ID), student, nil)
	if code != http.StatusOK {
		t.Fatalf("own result: %d", code)
	}
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/test-results/%d", result.ID), other, nil)
	if code != http.StatusForbidden {
		t.Fatalf("other student's result: %d, want 403", code)
	}

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/teacher/test-results/quiz/%d/statistics", quiz.ID), teacher, nil)
	if code != http.StatusOK {
		t.Fatalf("statistics: %d %s", code, env.Message)
	}
	var stats struct {
		PassedCount int64 `json:"passedCount"`
		TotalCount  int64 `json:"totalCount"`
	}
	decode(t, env.Data, &stats)
	if stats.PassedCount != 1 || stats.TotalCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	code, _ = s.do(http.MethodGet, "/api/teacher/test-results/status/DONE", teacher, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", code)
	}
	code, _ = s.do(http.MethodGet, "/api/teacher/test-results/range?start=2024-02-01&end=2024-01-01", teacher, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("inverted range: %d", code)
	}

	code, _ = s.do(http.MethodPost, "/api/admin/test-results/process-timeouts", teacher, nil)
	if code != http.StatusForbidden {
		t.Fatalf("teacher running timeouts: %d", code)
	}
	code, env = s.do(http.MethodPost, "/api/admin/test-results/process-timeouts", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("process timeouts: %d %s", code, env.Message)
	}

	code, _ = s.do(http.MethodGet, "/api/attempts/my", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/api/health", "", nil)
	if code != http.StatusOK {
		t.Fatalf("health: %d %s", code, env.Message)
	}
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decode(t, env.Data, &body)
	if body.Status != "ok" || body.Components["redis"] != "disabled" {
		t.Fatalf("health = %+v", body)
	}
}
