package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/repository"
)

// MockLinkRepository is a mock implementation of repository.LinkRepository
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkRepository) FindByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}

func (m *MockLinkRepository) Touch(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockLinkRepository) List(ctx context.Context, keyID *int64, skip, limit int) ([]model.ShortLink, error) {
	args := m.Called(ctx, keyID, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ShortLink), args.Error(1)
}

func (m *MockLinkRepository) Delete(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockLinkRepository) DeleteByKeyID(ctx context.Context, keyID int64) (int64, error) {
	args := m.Called(ctx, keyID)
	return args.Get(0).(int64), args.Error(1)
}

func setupLinkService(t *testing.T) (*LinkService, *MockLinkRepository) {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	mockRepo := new(MockLinkRepository)
	service := NewLinkService(mockRepo)

	return service, mockRepo
}

func TestCreate_GeneratedCode(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	var captured *model.ShortLink
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.ShortLink)
		}).
		Return(nil)

	link, err := service.Create(ctx, "https://example.com/a", "", nil)

	assert.NoError(t, err)
	assert.NotNil(t, link)
	assert.Len(t, captured.ShortCode, generatedCodeLength)
	for _, char := range captured.ShortCode {
		assert.Contains(t, codeAlphabet, string(char))
	}
	assert.Equal(t, "https://example.com/a", captured.OriginalURL)
	mockRepo.AssertExpectations(t)
}

func TestCreate_InvalidURL(t *testing.T) {
	service, _ := setupLinkService(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		url  string
	}{
		{"empty URL", ""},
		{"missing host", "http://"},
		{"whitespace only", "   "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(ctx, tc.url, "", nil)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestCreate_URLNormalization(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	var captured *model.ShortLink
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.ShortLink)
		}).
		Return(nil)

	_, err := service.Create(ctx, `example.com/p\?a\=1`, "", nil)

	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/p?a=1", captured.OriginalURL)
	mockRepo.AssertExpectations(t)
}

func TestCreate_CustomCode(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	var captured *model.ShortLink
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.ShortLink)
		}).
		Return(nil)

	link, err := service.Create(ctx, "https://example.com", "mycode99", nil)

	assert.NoError(t, err)
	assert.Equal(t, "mycode99", link.ShortCode)
	assert.Equal(t, "mycode99", captured.ShortCode)
	mockRepo.AssertExpectations(t)
}

func TestCreate_CustomCodeConflict(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Return(repository.ErrCodeExists).Once()

	_, err := service.Create(ctx, "https://example.com", "mycode99", nil)

	// A custom-code collision is final: no retry happens.
	assert.ErrorIs(t, err, repository.ErrCodeExists)
	mockRepo.AssertExpectations(t)
}

func TestCreate_CustomCodeValidation(t *testing.T) {
	service, _ := setupLinkService(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		code string
	}{
		{"too short", "abc"},
		{"too long", "abcdefghijk"},
		{"invalid characters", "abc-def"},
		{"with spaces", "abc def"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(ctx, "https://example.com", tc.code, nil)
			assert.ErrorIs(t, err, ErrInvalidCode)
		})
	}
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Return(repository.ErrCodeExists).Twice()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Return(nil).Once()

	link, err := service.Create(ctx, "https://example.com", "", nil)

	assert.NoError(t, err)
	assert.NotNil(t, link)
	mockRepo.AssertExpectations(t)
}

func TestCreate_GenerationExhausted(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).
		Return(repository.ErrCodeExists).Times(maxCodeAttempts)

	_, err := service.Create(ctx, "https://example.com", "", nil)

	assert.ErrorIs(t, err, ErrCodeGenerationMax)
	mockRepo.AssertExpectations(t)
}

func TestResolve_Success(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Touch", ctx, "abc123").Return("https://example.com", nil)

	target, err := service.Resolve(ctx, "abc123")

	assert.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	mockRepo.AssertExpectations(t)
}

func TestResolve_NotFound(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Touch", ctx, "missing").Return("", repository.ErrLinkNotFound)

	_, err := service.Resolve(ctx, "missing")

	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	mockRepo.AssertExpectations(t)
}

func TestInfo_DoesNotTouchStats(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	link := &model.ShortLink{ShortCode: "abc123", OriginalURL: "https://example.com", ClickCount: 7}
	mockRepo.On("FindByCode", ctx, "abc123").Return(link, nil)

	got, err := service.Info(ctx, "abc123", nil)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), got.ClickCount)
	mockRepo.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestInfo_OwnershipEnforced(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	owner := int64(1)
	other := int64(2)
	link := &model.ShortLink{ShortCode: "abc123", CreatedByKeyID: &owner}
	mockRepo.On("FindByCode", ctx, "abc123").Return(link, nil)

	_, err := service.Info(ctx, "abc123", &other)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := service.Info(ctx, "abc123", &owner)
	assert.NoError(t, err)
	assert.Equal(t, "abc123", got.ShortCode)
}

func TestDelete_NotFound(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("FindByCode", ctx, "missing").Return(nil, repository.ErrLinkNotFound)

	err := service.Delete(ctx, "missing", nil)

	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCreateBatch_CollectsFailures(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).Return(nil)

	links, failures := service.CreateBatch(ctx, []string{"https://a.example", "", "https://b.example"}, nil)

	assert.Len(t, links, 2)
	assert.Len(t, failures, 1)
	assert.True(t, strings.Contains(failures[0], "url 2"))
}

// atomicLinkRepo is an in-memory repository whose Touch performs the same
// atomic read-modify-write contract as the Postgres implementation.
type atomicLinkRepo struct {
	mu    sync.Mutex
	links map[string]*model.ShortLink
}

func newAtomicLinkRepo() *atomicLinkRepo {
	return &atomicLinkRepo{links: make(map[string]*model.ShortLink)}
}

func (r *atomicLinkRepo) Create(_ context.Context, link *model.ShortLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}
	link.CreatedAt = time.Now()
	stored := *link
	r.links[link.ShortCode] = &stored
	return nil
}

func (r *atomicLinkRepo) FindByCode(_ context.Context, code string) (*model.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, exists := r.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (r *atomicLinkRepo) Touch(_ context.Context, code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, exists := r.links[code]
	if !exists {
		return "", repository.ErrLinkNotFound
	}
	link.ClickCount++
	now := time.Now()
	link.LastAccessed = &now
	return link.OriginalURL, nil
}

func (r *atomicLinkRepo) List(_ context.Context, _ *int64, _, _ int) ([]model.ShortLink, error) {
	return nil, nil
}

func (r *atomicLinkRepo) Delete(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.links[code]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(r.links, code)
	return nil
}

func (r *atomicLinkRepo) DeleteByKeyID(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func TestResolve_ConcurrentClicksAreNotLost(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	repo := newAtomicLinkRepo()
	service := NewLinkService(repo)
	ctx := context.Background()

	link, err := service.Create(ctx, "https://example.com/a", "", nil)
	assert.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := service.Resolve(ctx, link.ShortCode)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := service.Info(ctx, link.ShortCode, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(n), stored.ClickCount)
	assert.NotNil(t, stored.LastAccessed)
}

func TestDelete_MakesCodeReusable(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	repo := newAtomicLinkRepo()
	service := NewLinkService(repo)
	ctx := context.Background()

	_, err := service.Create(ctx, "https://example.com/a", "mycode99", nil)
	assert.NoError(t, err)

	_, err = service.Create(ctx, "https://example.com/b", "mycode99", nil)
	assert.ErrorIs(t, err, repository.ErrCodeExists)

	assert.NoError(t, service.Delete(ctx, "mycode99", nil))

	_, err = service.Resolve(ctx, "mycode99")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	relink, err := service.Create(ctx, "https://example.com/b", "mycode99", nil)
	assert.NoError(t, err)
	assert.Equal(t, "mycode99", relink.ShortCode)

	target, err := service.Resolve(ctx, "mycode99")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/b", target)
}

func TestValidateCustomCode(t *testing.T) {
	assert.NoError(t, validateCustomCode("abc123"))
	assert.NoError(t, validateCustomCode("ABCdef1234"))
	assert.Error(t, validateCustomCode("abc12"))
	assert.Error(t, validateCustomCode("abc123def45"))
	assert.Error(t, validateCustomCode("abc_12"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeURL("example.com"))
	assert.Equal(t, "http://example.com", normalizeURL("http://example.com"))
	assert.Equal(t, "https://e.com/p?a=1&b=2", normalizeURL(`https://e.com/p\?a\=1\&b=2`))
}

func TestGenerationError(t *testing.T) {
	service, mockRepo := setupLinkService(t)
	ctx := context.Background()

	dbError := errors.New("connection refused")
	mockRepo.On("Create", ctx, mock.AnythingOfType("*model.ShortLink")).Return(dbError)

	_, err := service.Create(ctx, "https://example.com", "", nil)

	// Storage failures are not retried; only collisions are.
	assert.Equal(t, dbError, err)
	mockRepo.AssertNumberOfCalls(t, "Create", 1)
}
