package model

// FailureKind は読み取り経路で発生した失敗の分類。
// UI境界では空結果に畳み込まれるが、テストと運用向けに内部では区別して保持する。
type FailureKind string

const (
	// FailureNone は失敗なし。
	FailureNone FailureKind = "none"
	// FailureConfigMissing はCMSのベースURLが未設定。
	FailureConfigMissing FailureKind = "config_missing"
	// FailureTransport はネットワーク障害またはレスポンスの読み取り・JSON解析失敗。
	FailureTransport FailureKind = "transport"
	// FailureUpstreamStatus はCMSが2xx以外のステータスを返した。
	FailureUpstreamStatus FailureKind = "upstream_status"
	// FailureValidation はレコードの構造検証に失敗した。
	FailureValidation FailureKind = "validation"
	// FailureNotFound は全ての問い合わせ先でレコードが見つからなかった。
	FailureNotFound FailureKind = "not_found"
	// FailurePartial は一部のドメインのみ失敗した（残りの結果は有効）。
	FailurePartial FailureKind = "partial"
)
