package hedge

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"fundingbot/internal/models"
)

// Entry - снимок отслеживаемой позиции для отдачи наружу (копия,
// безопасно читать без блокировок)
type Entry struct {
	Position models.HedgePosition `json:"position"`
	Snapshot models.PnLSnapshot   `json:"snapshot"`
	State    string               `json:"state"`
}

// tracked - внутреннее состояние позиции в реестре
type tracked struct {
	pos  *models.HedgePosition
	snap *models.PnLSnapshot

	// Суммарный баланс обеих бирж до открытия - база для расчёта
	// реализованного профита при закрытии
	balanceBefore float64

	state string
}

// Registry - конкурентное хранилище живых хедж-позиций
//
// Единственный источник правды для свипов мониторинга: позиция видна
// свипам только после полной валидации и удаляется только после
// зафиксированного исхода закрытия. Все мутации сериализуются через
// mutex реестра; блокировка никогда не удерживается через удалённый
// вызов.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]*tracked

	// Монотонный счётчик id. Хранит последний выданный номер;
	// Release откатывает его только если новее ничего не выдано
	// (CAS) - гонка отката с параллельной выдачей принята как
	// маловероятная, id в худшем случае просто сгорает.
	idCounter int64
}

// NewRegistry создаёт пустой реестр позиций
func NewRegistry() *Registry {
	return &Registry{
		positions: make(map[string]*tracked),
	}
}

// NextID выдаёт следующий id позиции (P-0001, P-0002...).
// Возвращает и числовое значение для возможного Release.
func (r *Registry) NextID() (string, int64) {
	n := atomic.AddInt64(&r.idCounter, 1)
	return FormatPositionID(n), n
}

// Release возвращает id в счётчик после отката открытия.
// Срабатывает только если с момента выдачи не выдавался более новый id:
// выданные номера никогда не переиспользуются.
func (r *Registry) Release(n int64) bool {
	return atomic.CompareAndSwapInt64(&r.idCounter, n, n-1)
}

// FormatPositionID форматирует числовой id в операторский вид
func FormatPositionID(n int64) string {
	return fmt.Sprintf("P-%04d", n)
}

// Insert регистрирует валидированную позицию
func (r *Registry) Insert(pos *models.HedgePosition, snap *models.PnLSnapshot, balanceBefore float64) {
	r.mu.Lock()
	r.positions[pos.ID] = &tracked{
		pos:           pos,
		snap:          snap,
		balanceBefore: balanceBefore,
		state:         StateMonitoring,
	}
	r.mu.Unlock()
}

// Remove удаляет позицию из отслеживания
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.positions, id)
	r.mu.Unlock()
}

// Get возвращает копию позиции
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.positions[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{Position: *t.pos, Snapshot: *t.snap, State: t.state}, true
}

// List возвращает копии всех позиций, отсортированные по id
func (r *Registry) List() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.positions))
	for _, t := range r.positions {
		entries = append(entries, Entry{Position: *t.pos, Snapshot: *t.snap, State: t.state})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position.ID < entries[j].Position.ID
	})
	return entries
}

// ByMode возвращает копии позиций заданного режима
func (r *Registry) ByMode(mode models.HoldingMode) []Entry {
	var out []Entry
	for _, e := range r.List() {
		if e.Position.Mode == mode {
			out = append(out, e)
		}
	}
	return out
}

// Len возвращает количество отслеживаемых позиций
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// BalanceBefore возвращает суммарный баланс бирж до открытия позиции
func (r *Registry) BalanceBefore(id string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.positions[id]
	if !ok {
		return 0, false
	}
	return t.balanceBefore, true
}

// IncrementBadStreak увеличивает bad streak позиции и возвращает новое
// значение. Streak никогда не уменьшается - сбрасывается только
// удалением позиции из реестра.
func (r *Registry) IncrementBadStreak(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.positions[id]
	if !ok {
		return 0, false
	}
	t.pos.BadStreak++
	return t.pos.BadStreak, true
}

// MarkPnlNotified помечает позицию как уведомлённую о пороге P&L.
// Возвращает true только первому вызвавшему (идемпотентность событий).
func (r *Registry) MarkPnlNotified(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.positions[id]
	if !ok || t.pos.PnlNotified {
		return false
	}
	t.pos.PnlNotified = true
	return true
}

// SetCloseReason проставляет причину закрытия
func (r *Registry) SetCloseReason(id, reason string) {
	r.mu.Lock()
	if t, ok := r.positions[id]; ok {
		t.pos.CloseReason = reason
	}
	r.mu.Unlock()
}

// SetManualCheck помечает позицию как требующую ручной сверки
func (r *Registry) SetManualCheck(id string) {
	r.mu.Lock()
	if t, ok := r.positions[id]; ok {
		t.pos.ManualCheck = true
		t.state = StateManualIntervention
	}
	r.mu.Unlock()
}

// SetState переводит позицию в новое состояние саги.
// Недопустимый переход игнорируется (возвращает false).
func (r *Registry) SetState(id, state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.positions[id]
	if !ok {
		return false
	}
	if !CanTransition(t.state, state) {
		return false
	}
	t.state = state
	return true
}

// UpdateSnapshot применяет мутацию к снапшоту P&L под блокировкой и
// пересчитывает производные итоги
func (r *Registry) UpdateSnapshot(id string, fn func(*models.PnLSnapshot)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.positions[id]
	if !ok {
		return false
	}
	fn(t.snap)
	t.snap.Recalculate()
	return true
}
