package memory

import "errors"

var errEmptyLedgerID = errors.New("ledger row without ledger id")
