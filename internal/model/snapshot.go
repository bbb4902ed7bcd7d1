package model

import "time"

// FundingSnapshot はある時点でのCaseの資金状況の記録。
// workerが定期的に保存し、進捗の推移表示に使う。
type FundingSnapshot struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	CaseID     int       `json:"caseId"`
	CaseKind   CaseType  `json:"caseKind"`
	FundNeeded float64   `json:"fundNeeded"`
	FundRaised float64   `json:"fundRaised"`
	Progress   int       `json:"progress"`
	IsUrgent   bool      `json:"isUrgent"`
	TakenAt    time.Time `json:"takenAt"`
}
