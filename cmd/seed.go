package main

import (
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store/memory"
)

// demoAccountNamespace derives stable demo account ids from their mobile numbers,
// so the ids printed at startup stay valid across restarts.
var demoAccountNamespace = uuid.MustParse("6f1c3e0a-2b7d-4d1e-9a55-0c4b8e2f7a13")

var demoAccounts = []struct {
	mobile  string
	name    string
	opening string
}{
	{mobile: "09171234567", name: "Maria Santos", opening: "25000.00"},
	{mobile: "09181234567", name: "Jose Reyes", opening: "1500.00"},
	{mobile: "09191234567", name: "Ana Cruz", opening: "120000.00"},
	{mobile: "09201234567", name: "Paolo Garcia", opening: "0.00"},
}

func demoAccountID(mobile string) uuid.UUID {
	return uuid.NewSHA1(demoAccountNamespace, []byte(mobile))
}

// seedDemoAccounts registers a handful of accounts in the in-memory ledger.
func seedDemoAccounts(s *memory.Store) error {
	for _, acct := range demoAccounts {
		id := demoAccountID(acct.mobile)
		opening, err := decimal.NewFromString(acct.opening)
		if err != nil {
			return err
		}
		if err := s.AddAccount(domain.Account{ID: id, MobileNumber: acct.mobile, DisplayName: acct.name}, opening); err != nil {
			return err
		}
		log.Printf("level=info component=bootstrap msg=\"demo account seeded\" account_id=%s mobile_number=%s balance=%s", id, acct.mobile, domain.FormatPeso(opening))
	}
	return nil
}
