package alert

import "time"

// Alert is a persisted alert row.
//
// SlackChannel and SlackTS are set together once the first Slack post for the
// alert succeeds; until then both are nil. ChartFilename is set at most once
// per row, when a chart was generated for the firing episode that created it.
type Alert struct {
	ID            int64
	Text          string
	Resolved      bool
	Fingerprint   *string
	ChartFilename *string
	SlackChannel  *string
	SlackTS       *string
	SlothSLO      *string
	SlothService  *string
	ObjectiveName *string
	Severity      *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAlert carries the fields for a row about to be inserted. The store
// assigns ID, CreatedAt and UpdatedAt.
type NewAlert struct {
	Text          string
	Resolved      bool
	Fingerprint   *string
	ChartFilename *string
	SlackChannel  *string
	SlackTS       *string
	SlothSLO      *string
	SlothService  *string
	ObjectiveName *string
	Severity      *string
}
