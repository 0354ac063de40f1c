package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/repository"

	"github.com/shopspring/decimal"
)

type fakeAttemptStore struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]*model.QuizAttempt
	answers  map[uint][]model.StudentAnswer

	// beforeCreate 模拟并发：返回非 nil 时 Create 直接返回该错误
	beforeCreate func(s *fakeAttemptStore, a *model.QuizAttempt) error
	findErr      error
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[uint]*model.QuizAttempt),
		answers:  make(map[uint][]model.StudentAnswer),
	}
}

// insert 需持有锁
func (s *fakeAttemptStore) insert(a *model.QuizAttempt) error {
	for _, existing := range s.attempts {
		if existing.QuizID != a.QuizID || existing.StudentID != a.StudentID {
			continue
		}
		if existing.AttemptNumber == a.AttemptNumber {
			return repository.ErrDuplicateKey
		}
		if !existing.IsCompleted && !a.IsCompleted {
			return repository.ErrDuplicateKey
		}
	}
	s.nextID++
	a.ID = s.nextID
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeCreate != nil {
		hook := s.beforeCreate
		s.beforeCreate = nil
		if err := hook(s, a); err != nil {
			return err
		}
	}
	return s.insert(a)
}

func (s *fakeAttemptStore) FindByID(_ context.Context, id uint) (*model.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) FindActive(_ context.Context, quizID, studentID uint) (*model.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && !a.IsCompleted {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeAttemptStore) CountByStudentAndQuiz(_ context.Context, studentID, quizID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *fakeAttemptStore) list(match func(*model.QuizAttempt) bool) []model.QuizAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range s.attempts {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *fakeAttemptStore) ListByStudent(_ context.Context, studentID uint) ([]model.QuizAttempt, error) {
	return s.list(func(a *model.QuizAttempt) bool { return a.StudentID == studentID }), nil
}

func (s *fakeAttemptStore) ListByQuiz(_ context.Context, quizID uint) ([]model.QuizAttempt, error) {
	return s.list(func(a *model.QuizAttempt) bool { return a.QuizID == quizID }), nil
}

func (s *fakeAttemptStore) Complete(_ context.Context, attemptID uint, score, maxScore decimal.Decimal, completedAt time.Time, answers []model.StudentAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok || a.IsCompleted {
		return repository.ErrConflict
	}
	for i := range answers {
		answers[i].AttemptID = attemptID
	}
	s.answers[attemptID] = append([]model.StudentAnswer(nil), answers...)
	a.Score = score
	a.MaxScore = maxScore
	a.CompletedAt = &completedAt
	a.IsCompleted = true
	a.ActiveKey = nil
	return nil
}

func (s *fakeAttemptStore) FindAnswersByAttempt(_ context.Context, attemptID uint) ([]model.StudentAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StudentAnswer(nil), s.answers[attemptID]...), nil
}

type fakeCatalog struct {
	mu           sync.Mutex
	quizzes      map[uint]*model.Quiz
	questions    map[uint][]model.Question
	courses      map[uint]*model.Course
	nextID       uint
	questionsErr error
	questionCall int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		quizzes:   make(map[uint]*model.Quiz),
		questions: make(map[uint][]model.Question),
		courses:   make(map[uint]*model.Course),
		nextID:    1000,
	}
}

func (c *fakeCatalog) FindQuizByID(_ context.Context, id uint) (*model.Quiz, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (c *fakeCatalog) FindQuestionsWithOptions(_ context.Context, quizID uint) ([]model.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questionCall++
	if c.questionsErr != nil {
		return nil, c.questionsErr
	}
	src := c.questions[quizID]
	out := make([]model.Question, len(src))
	for i, q := range src {
		q.AnswerOptions = append([]model.AnswerOption(nil), q.AnswerOptions...)
		out[i] = q
	}
	return out, nil
}

func (c *fakeCatalog) FindCourseByID(_ context.Context, id uint) (*model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	course, ok := c.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *course
	return &cp, nil
}

func (c *fakeCatalog) CreateQuiz(_ context.Context, quiz *model.Quiz) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	quiz.ID = c.nextID
	for i := range quiz.Questions {
		c.nextID++
		quiz.Questions[i].ID = c.nextID
		quiz.Questions[i].QuizID = quiz.ID
		for j := range quiz.Questions[i].AnswerOptions {
			c.nextID++
			quiz.Questions[i].AnswerOptions[j].ID = c.nextID
			quiz.Questions[i].AnswerOptions[j].QuestionID = quiz.Questions[i].ID
		}
	}
	cp := *quiz
	c.quizzes[quiz.ID] = &cp
	c.questions[quiz.ID] = append([]model.Question(nil), quiz.Questions...)
	return nil
}

func (c *fakeCatalog) Deactivate(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quizzes[id]
	if !ok {
		return repository.ErrNotFound
	}
	q.IsActive = false
	return nil
}

func (c *fakeCatalog) ListByCourse(_ context.Context, courseID uint, activeOnly bool) ([]model.Quiz, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Quiz
	for _, q := range c.quizzes {
		if q.CourseID == courseID && (!activeOnly || q.IsActive) {
			out = append(out, *q)
		}
	}
	return out, nil
}

// setCorrect 修改某题的正确选项
func (c *fakeCatalog) setCorrect(quizID, questionID uint, correct ...uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := make(map[uint]bool)
	for _, id := range correct {
		want[id] = true
	}
	for i := range c.questions[quizID] {
		q := &c.questions[quizID][i]
		if q.ID != questionID {
			continue
		}
		for j := range q.AnswerOptions {
			q.AnswerOptions[j].IsCorrect = want[q.AnswerOptions[j].ID]
		}
	}
}

type fakeUsers struct {
	users map[uint]*model.User
}

func (u *fakeUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	nextID  uint
	results map[uint]*model.TestResult
	creates int
	err     error

	stats      *repository.QuizStatistics
	statsEnter chan struct{}
	statsGate  chan struct{}
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: make(map[uint]*model.TestResult)}
}

func (s *fakeResultStore) byAttempt(attemptID uint) *model.TestResult {
	for _, r := range s.results {
		if r.QuizAttemptID == attemptID {
			return r
		}
	}
	return nil
}

func (s *fakeResultStore) Create(_ context.Context, r *model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.byAttempt(r.QuizAttemptID) != nil {
		return repository.ErrDuplicateKey
	}
	s.creates++
	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.results[r.ID] = &cp
	return nil
}

func (s *fakeResultStore) Replace(ctx context.Context, r *model.TestResult) error {
	s.mu.Lock()
	if old := s.byAttempt(r.QuizAttemptID); old != nil {
		delete(s.results, old.ID)
	}
	s.mu.Unlock()
	return s.Create(ctx, r)
}

func (s *fakeResultStore) FindByID(_ context.Context, id uint) (*model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeResultStore) FindByAttemptID(_ context.Context, attemptID uint) (*model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	r := s.byAttempt(attemptID)
	if r == nil {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeResultStore) ExistsByAttemptID(ctx context.Context, attemptID uint) (bool, error) {
	_, err := s.FindByAttemptID(ctx, attemptID)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *fakeResultStore) List(_ context.Context, f repository.ResultFilter) ([]model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestResult
	for _, r := range s.results {
		if (f.StudentID == 0 || r.StudentID == f.StudentID) &&
			(f.QuizID == 0 || r.QuizID == f.QuizID) &&
			(f.Status == "" || r.Status == f.Status) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeResultStore) TopScoresByQuiz(ctx context.Context, quizID uint, limit int) ([]model.TestResult, error) {
	out, _ := s.List(ctx, repository.ResultFilter{QuizID: quizID, Status: model.ResultPassed})
	sort.Slice(out, func(i, j int) bool { return out[i].Score.GreaterThan(out[j].Score) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeResultStore) ListCompletedBetween(_ context.Context, start, end time.Time) ([]model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestResult
	for _, r := range s.results {
		if r.CompletedAt != nil && !r.CompletedAt.Before(start) && !r.CompletedAt.After(end) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeResultStore) QuizStatistics(_ context.Context, _ uint) (*repository.QuizStatistics, error) {
	if s.statsEnter != nil {
		s.statsEnter <- struct{}{}
	}
	if s.statsGate != nil {
		<-s.statsGate
	}
	return s.stats, nil
}

func (s *fakeResultStore) FindStaleInProgress(_ context.Context, cutoff time.Time) ([]model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestResult
	for _, r := range s.results {
		if r.Status == model.ResultInProgress && r.CreatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeResultStore) MarkTimedOut(_ context.Context, id uint, completedAt time.Time, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok || r.Status != model.ResultInProgress {
		return false, nil
	}
	r.Status = model.ResultTimeout
	r.CompletedAt = &completedAt
	r.ErrorMessage = &message
	return true, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []VisitEvent
}

func (n *recordingNotifier) Notify(e VisitEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(VisitEvent) { panic("sink down") }

// fixture 两道题的测验：5 分单选 correct={opt1}，5 分多选 correct={opt3,opt4}
type fixture struct {
	catalog  *fakeCatalog
	attempts *fakeAttemptStore
	results  *fakeResultStore
	visits   *recordingNotifier
	svc      *QuizAttemptService

	quiz                 *model.Quiz
	single, multi        uint
	opt1, opt2           uint
	opt3, opt4, opt5     uint
	studentID, teacherID uint
}

func newFixture() *fixture {
	f := &fixture{
		catalog:   newFakeCatalog(),
		attempts:  newFakeAttemptStore(),
		results:   newFakeResultStore(),
		visits:    &recordingNotifier{},
		studentID: 7,
		teacherID: 3,
	}
	f.catalog.courses[1] = &model.Course{BaseModel: model.BaseModel{ID: 1}, Title: "Go", TeacherID: f.teacherID}

	quiz := &model.Quiz{
		Title:    "basics",
		CourseID: 1,
		IsActive: true,
		Questions: []model.Question{
			{QuestionText: "single", QuestionType: model.SingleChoice, Points: 5, OrderIndex: 1,
				AnswerOptions: []model.AnswerOption{{OptionText: "1", IsCorrect: true}, {OptionText: "2"}}},
			{QuestionText: "multi", QuestionType: model.MultipleChoice, Points: 5, OrderIndex: 2,
				AnswerOptions: []model.AnswerOption{{OptionText: "3", IsCorrect: true}, {OptionText: "4", IsCorrect: true}, {OptionText: "5"}}},
		},
	}
	_ = f.catalog.CreateQuiz(context.Background(), quiz)
	f.quiz = quiz
	f.single, f.multi = quiz.Questions[0].ID, quiz.Questions[1].ID
	f.opt1, f.opt2 = quiz.Questions[0].AnswerOptions[0].ID, quiz.Questions[0].AnswerOptions[1].ID
	f.opt3, f.opt4, f.opt5 = quiz.Questions[1].AnswerOptions[0].ID, quiz.Questions[1].AnswerOptions[1].ID, quiz.Questions[1].AnswerOptions[2].ID

	users := &fakeUsers{users: map[uint]*model.User{
		f.studentID: {BaseModel: model.BaseModel{ID: f.studentID}, Role: model.Student},
		f.teacherID: {BaseModel: model.BaseModel{ID: f.teacherID}, Role: model.Teacher},
	}}
	f.svc = NewQuizAttemptService(f.attempts, f.catalog, users, f.visits, nil, false)
	return f
}

func (f *fixture) setQuiz(mut func(q *model.Quiz)) {
	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()
	mut(f.catalog.quizzes[f.quiz.ID])
}

func (f *fixture) answers(single []uint, multi []uint) []AnswerRequest {
	return []AnswerRequest{
		{QuestionID: f.single, SelectedOptionIDs: single},
		{QuestionID: f.multi, SelectedOptionIDs: multi},
	}
}

func (f *fixture) calculator() *TestResultCalculationService {
	return NewTestResultCalculationService(f.attempts, f.catalog, f.results, nil, decimal.NewFromInt(70))
}
