package models

// QueryLogEntryResponse describes one logged resolution.
type QueryLogEntryResponse struct {
	ID              int64  `json:"id"`
	Timestamp       int64  `json:"timestamp"`
	Domain          string `json:"domain"`
	QType           uint16 `json:"qtype"`
	Client          string `json:"client,omitempty"`
	ResponseCode    uint8  `json:"response_code"`
	ResponseDelayMs int64  `json:"response_delay_ms"`
	Source          string `json:"source,omitempty"`
}

// QueryLogListResponse is a page of the query log.
type QueryLogListResponse struct {
	Entries []QueryLogEntryResponse `json:"entries"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}
