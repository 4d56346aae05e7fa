package events

// Filter defines criteria for matching changes.
type Filter struct {
	// Table filters by table (empty = all tables).
	Table Table

	// ConversationID filters to one conversation (empty = all).
	ConversationID string

	// Types filters by change type (nil = all types).
	Types []ChangeType
}

// Matches returns true if the change matches the filter criteria.
func (f Filter) Matches(change Change) bool {
	if f.Table != "" && change.Table != f.Table {
		return false
	}
	if f.ConversationID != "" && change.ConversationID != f.ConversationID {
		return false
	}
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if change.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// InsertsOn returns a filter for insert events on table within a conversation.
func InsertsOn(table Table, conversationID string) Filter {
	return Filter{
		Table:          table,
		ConversationID: conversationID,
		Types:          []ChangeType{ChangeInsert},
	}
}
