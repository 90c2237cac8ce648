package logic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"xhs-creator/dao/mysql"
	"xhs-creator/models"
	"xhs-creator/pkg/generator"
	"xhs-creator/pkg/sse"
)

// =============================================================================
// TEST HELPERS：内存版存储与假生成器
// =============================================================================

// memStore 以内存实现业务层依赖的全部存储接口，语义对齐 dao/mysql.Store
type memStore struct {
	mu sync.Mutex

	tasks    map[uint64]*models.Task
	images   map[uint64]*models.Image // key: imageID
	versions []*models.ImageVersion
	usage    map[uint64]int
	balances map[uint64]int64
	txs      []models.PowerTransaction
	config   *models.BillingConfig

	nextAccount int
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    make(map[uint64]*models.Task),
		images:   make(map[uint64]*models.Image),
		usage:    make(map[uint64]int),
		balances: make(map[uint64]int64),
		config: &models.BillingConfig{
			OutlinePower:      10,
			CoverImagePower:   20,
			ContentImagePower: 15,
			FreeUsageLimit:    3,
		},
	}
}

// --- TaskStore ---

func (m *memStore) CreateTask(ctx context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.TaskID] = &cp
	return nil
}

func (m *memStore) GetTask(ctx context.Context, taskID uint64) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateTaskStatus(ctx context.Context, taskID uint64, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.Status = status
		t.ErrorMessage = errMsg
	}
	return nil
}

func (m *memStore) SaveTaskOutline(ctx context.Context, taskID uint64, outline string, pages []models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.Outline = outline
		t.Pages = pages
		t.TotalPages = len(pages)
		t.Status = models.TaskStatusOutlineReady
	}
	return nil
}

func (m *memStore) SetTaskCover(ctx context.Context, taskID uint64, coverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.CoverImageURL = coverURL
	}
	return nil
}

func (m *memStore) IncrementGeneratedPages(ctx context.Context, taskID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.GeneratedPages++
	}
	return nil
}

func (m *memStore) ResetGeneratedPages(ctx context.Context, taskID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.GeneratedPages = 0
	}
	return nil
}

// --- RecoveryStore ---

func (m *memStore) FailStuckTasks(ctx context.Context, before time.Time, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		generating := t.Status == models.TaskStatusGeneratingOutline || t.Status == models.TaskStatusGeneratingImages
		if generating && t.UpdatedAt.Before(before) {
			t.Status = models.TaskStatusFailed
			t.ErrorMessage = msg
			n++
		}
	}
	return n, nil
}

func (m *memStore) FailTasksInStatuses(ctx context.Context, statuses []string, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		for _, s := range statuses {
			if t.Status == s {
				t.Status = models.TaskStatusFailed
				t.ErrorMessage = msg
				n++
				break
			}
		}
	}
	return n, nil
}

// --- ImageStore ---

func (m *memStore) CreateImage(ctx context.Context, img *models.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *img
	m.images[img.ImageID] = &cp
	return nil
}

func (m *memStore) GetImage(ctx context.Context, taskID uint64, pageIndex int) (*models.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.images {
		if img.TaskID == taskID && img.PageIndex == pageIndex {
			cp := *img
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListImages(ctx context.Context, taskID uint64) ([]models.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Image
	for _, img := range m.images {
		if img.TaskID == taskID {
			out = append(out, *img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageIndex < out[j].PageIndex })
	return out, nil
}

func (m *memStore) ResetImage(ctx context.Context, imageID uint64, prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.images[imageID]; ok {
		img.Status = models.ImageStatusPending
		img.Prompt = prompt
		img.ErrorMessage = ""
	}
	return nil
}

func (m *memStore) MarkImageGenerating(ctx context.Context, imageID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.images[imageID]; ok {
		img.Status = models.ImageStatusGenerating
	}
	return nil
}

func (m *memStore) SetImageBilling(ctx context.Context, imageID uint64, deducted bool, amount int64, accountNo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.images[imageID]; ok {
		img.PowerDeducted = deducted
		img.PowerAmount = amount
		img.BillingAccountNo = accountNo
	}
	return nil
}

func (m *memStore) FailImage(ctx context.Context, imageID uint64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.images[imageID]; ok {
		img.Status = models.ImageStatusFailed
		img.ErrorMessage = errMsg
		img.PowerDeducted = false
		img.PowerAmount = 0
		img.BillingAccountNo = ""
		img.RetryCount++
	}
	return nil
}

// --- VersionStore ---

func (m *memStore) SaveVersion(ctx context.Context, v *models.ImageVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, old := range m.versions {
		if old.ImageID == v.ImageID {
			old.IsCurrent = false
		}
	}
	cp := *v
	cp.IsCurrent = true
	cp.CreatedAt = time.Now()
	m.versions = append(m.versions, &cp)
	if img, ok := m.images[v.ImageID]; ok {
		img.ImageURL = v.ImageURL
		img.CurrentVersion = v.Version
		img.Status = models.ImageStatusCompleted
		img.ErrorMessage = ""
	}
	return nil
}

func (m *memStore) ListVersions(ctx context.Context, taskID uint64, pageIndex int) ([]models.ImageVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ImageVersion
	for _, v := range m.versions {
		if v.TaskID == taskID && v.PageIndex == pageIndex {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *memStore) GetVersion(ctx context.Context, versionID uint64) (*models.ImageVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.VersionID == versionID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, mysql.ErrVersionNotFound
}

func (m *memStore) RestoreVersion(ctx context.Context, taskID uint64, pageIndex, version int) (*models.ImageVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *models.ImageVersion
	for _, v := range m.versions {
		if v.TaskID == taskID && v.PageIndex == pageIndex && v.Version == version {
			target = v
			break
		}
	}
	if target == nil {
		return nil, mysql.ErrVersionNotFound
	}
	for _, v := range m.versions {
		if v.TaskID == taskID && v.PageIndex == pageIndex {
			v.IsCurrent = v.Version == version
		}
	}
	if img, ok := m.images[target.ImageID]; ok {
		img.ImageURL = target.ImageURL
		img.CurrentVersion = target.Version
	}
	cp := *target
	cp.IsCurrent = true
	return &cp, nil
}

// --- UsageStore ---

func (m *memStore) GetFreeUsageCount(ctx context.Context, userID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[userID], nil
}

func (m *memStore) IncrementFreeUsage(ctx context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[userID]++
	return nil
}

// --- Wallet ---

func (m *memStore) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *memStore) Debit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return "", mysql.ErrInsufficientPower
	}
	m.balances[userID] -= amount
	m.nextAccount++
	accountNo := fmt.Sprintf("acct-%d", m.nextAccount)
	m.txs = append(m.txs, models.PowerTransaction{
		AccountNo: accountNo, UserID: userID, TxType: models.TxTypeDebit,
		Amount: amount, BizType: meta.BizType, PageType: meta.PageType,
		TaskID: meta.TaskID, PageIndex: meta.PageIndex, Remark: meta.Remark,
	})
	return accountNo, nil
}

func (m *memStore) Credit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	m.nextAccount++
	accountNo := fmt.Sprintf("acct-%d", m.nextAccount)
	m.txs = append(m.txs, models.PowerTransaction{
		AccountNo: accountNo, UserID: userID, TxType: models.TxTypeCredit,
		Amount: amount, BizType: meta.BizType, PageType: meta.PageType,
		TaskID: meta.TaskID, PageIndex: meta.PageIndex, Remark: meta.Remark,
	})
	return accountNo, nil
}

// --- ConfigStore ---

func (m *memStore) GetBillingConfig(ctx context.Context) (*models.BillingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.config
	return &cp, nil
}

func (m *memStore) UpdateBillingConfig(ctx context.Context, cfg *models.BillingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.config = &cp
	return nil
}

// --- ProgressStore ---

func (m *memStore) InitProgress(ctx context.Context, taskID uint64, total int) error { return nil }
func (m *memStore) SetStage(ctx context.Context, taskID uint64, stage string, current, total int) error {
	return nil
}
func (m *memStore) SetPageStatus(ctx context.Context, taskID uint64, pageIndex int, status, imageURL, errMsg string) error {
	return nil
}
func (m *memStore) GetProgress(ctx context.Context, taskID uint64) (*models.TaskProgress, error) {
	return nil, nil
}
func (m *memStore) ClearProgress(ctx context.Context, taskID uint64) error { return nil }

// =============================================================================
// 事件记录器与假生成器
// =============================================================================

// eventRecorder 记录发布顺序，替代 sse.Hub
type eventRecorder struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *eventRecorder) Publish(topic string, ev sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) byType(typ string) []sse.Event {
	var out []sse.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// imageCall 一次生图调用的入参快照
type imageCall struct {
	prompt  string
	refs    []string
	size    string
	quality string
}

// fakeGenerator 按提示词决定成败，记录每次调用
type fakeGenerator struct {
	mu          sync.Mutex
	text        string
	textErr     error
	textPrompts []string
	imageErr    func(prompt string) error
	imageCalls  []imageCall
	urlSeq      int
	baseURL     string // 生成地址的前缀，默认 https://img.example.com
}

func (g *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.textPrompts = append(g.textPrompts, prompt)
	if g.textErr != nil {
		return "", g.textErr
	}
	return g.text, nil
}

func (g *fakeGenerator) GenerateImage(ctx context.Context, prompt string, opts generator.ImageOptions) (string, error) {
	g.mu.Lock()
	g.imageCalls = append(g.imageCalls, imageCall{
		prompt:  prompt,
		refs:    opts.ReferenceImages,
		size:    opts.Size,
		quality: opts.Quality,
	})
	fail := g.imageErr
	g.mu.Unlock()
	if fail != nil {
		if err := fail(prompt); err != nil {
			return "", err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.urlSeq++
	base := g.baseURL
	if base == "" {
		base = "https://img.example.com"
	}
	return fmt.Sprintf("%s/%d.jpg", base, g.urlSeq), nil
}

func (g *fakeGenerator) calls() []imageCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]imageCall, len(g.imageCalls))
	copy(out, g.imageCalls)
	return out
}

type fakeResolver struct {
	gen  generator.Generator
	info *generator.ModelInfo
	err  error
}

func (r *fakeResolver) Resolve(ctx context.Context) (generator.Generator, *generator.ModelInfo, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	info := r.info
	if info == nil {
		info = &generator.ModelInfo{ModelID: "test-model", Provider: "test", EndpointType: generator.EndpointImages}
	}
	return r.gen, info, nil
}
