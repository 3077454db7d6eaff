package models

import "time"

// UserState — состояние диалога одного пользователя, хранится в Redis как JSON.
type UserState struct {
	UserID      int64                  `json:"user_id"`
	CurrentStep string                 `json:"current_step"`
	TempData    map[string]interface{} `json:"temp_data"`
}

func (s *UserState) GetInt64(key string) int64 {
	if s.TempData == nil {
		return 0
	}
	val, ok := s.TempData[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (s *UserState) GetString(key string) string {
	if s.TempData == nil {
		return ""
	}
	if str, ok := s.TempData[key].(string); ok {
		return str
	}
	return ""
}

func (s *UserState) GetTime(key string) time.Time {
	if s.TempData == nil {
		return time.Time{}
	}
	switch v := s.TempData[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// GetInt64Slice восстанавливает список идентификаторов после JSON round-trip.
func (s *UserState) GetInt64Slice(key string) []int64 {
	if s.TempData == nil {
		return nil
	}
	val, ok := s.TempData[key]
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []int64:
		return v
	case []interface{}:
		var ids []int64
		for _, item := range v {
			switch n := item.(type) {
			case int64:
				ids = append(ids, n)
			case float64:
				ids = append(ids, int64(n))
			case int:
				ids = append(ids, int64(n))
			}
		}
		return ids
	default:
		return nil
	}
}
