package repository

import "errors"

// ErrAlreadyRecorded is returned by RevenueRepository.Append when an event
// for the same source event id is already in the ledger.
var ErrAlreadyRecorded = errors.New("revenue event for source event already recorded")
