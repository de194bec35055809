package hedge

// Состояния саги открытия/удержания/закрытия хеджа
const (
	StateOpening    = "OPENING"
	StateValidating = "VALIDATING"
	StateOpen       = "OPEN"
	StateMonitoring = "MONITORING"
	StateClosing    = "CLOSING"
	StateClosed     = "CLOSED"

	// Терминальные отказы
	StateOpenFailed         = "OPEN_FAILED"
	StateValidationFailed   = "VALIDATION_FAILED"
	StateManualIntervention = "MANUAL_INTERVENTION"
)

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[string][]string{
	StateOpening:    {StateValidating, StateOpenFailed},
	StateValidating: {StateOpen, StateValidationFailed, StateManualIntervention},
	StateOpen:       {StateMonitoring},
	StateMonitoring: {StateClosing, StateManualIntervention}, // ManualIntervention при неудачном закрытии после ликвидации
	StateClosing:    {StateClosed, StateMonitoring},          // обратно в Monitoring при ClosingFailure (повтор)
	StateClosed:     {},

	// Оператор может закрыть позицию после ручной сверки через REST
	StateManualIntervention: {StateClosing},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для состояний, из которых сага не продолжается
func IsTerminal(s string) bool {
	switch s {
	case StateClosed, StateOpenFailed, StateValidationFailed:
		return true
	}
	return false
}

// StateInfo возвращает описание состояния для оператора
func StateInfo(s string) string {
	switch s {
	case StateOpening:
		return "Открытие ног на обеих биржах..."
	case StateValidating:
		return "Проверка открытых позиций..."
	case StateOpen:
		return "Хедж открыт"
	case StateMonitoring:
		return "Хедж под наблюдением"
	case StateClosing:
		return "Закрытие ног..."
	case StateClosed:
		return "Хедж закрыт"
	case StateOpenFailed:
		return "Открытие не удалось (откат выполнен)"
	case StateValidationFailed:
		return "Валидация не прошла (ноги закрыты принудительно)"
	case StateManualIntervention:
		return "Ошибка! Требуется ручная сверка"
	default:
		return "Неизвестное состояние"
	}
}
