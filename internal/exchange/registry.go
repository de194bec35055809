package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory создаёт адаптер биржи. Пакеты реализаций регистрируют свои
// фабрики через RegisterFactory в init().
type Factory func() (Exchange, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory регистрирует фабрику адаптера под именем биржи
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = f
}

// NewExchange создаёт новый экземпляр биржи по имени
func NewExchange(name string) (Exchange, error) {
	factoriesMu.RLock()
	f, ok := factories[strings.ToLower(name)]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
	return f()
}

// IsSupported проверяет, зарегистрирована ли фабрика биржи
func IsSupported(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[strings.ToLower(name)]
	return ok
}

// Registry - потокобезопасный реестр подключённых бирж
//
// Единственная точка разрешения имени биржи в адаптер для оркестратора
// и мониторинга. Без глобального состояния: каждый компонент получает
// свой Registry через конструктор.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Exchange
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Exchange),
	}
}

// Register добавляет подключённую биржу
func (r *Registry) Register(ex Exchange) {
	r.mu.Lock()
	r.adapters[strings.ToLower(ex.Name())] = ex
	r.mu.Unlock()
}

// Resolve возвращает адаптер по имени
func (r *Registry) Resolve(name string) (Exchange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.adapters[strings.ToLower(name)]
	return ex, ok
}

// Names возвращает отсортированный список подключённых бирж
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len возвращает количество подключённых бирж
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
