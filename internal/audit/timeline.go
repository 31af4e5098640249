package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters narrows the audit trail. Zero values mean no filter.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one committed mutation.
type TimelineRow struct {
	ID       int64           `json:"id"`
	At       time.Time       `json:"at"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo holds simple page metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Query is the repository form of the filters.
type Query struct {
	From     time.Time
	To       time.Time
	Entity   string
	EntityID string
	Action   string
	Offset   int
	Limit    int
}
