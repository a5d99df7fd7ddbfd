package core

import (
	"errors"
	"testing"
	"time"
)

func TestSignedAndReversal(t *testing.T) {
	amt := Money{Cents: 3000}
	if got := Expense.Signed(amt); got.Cents != -3000 {
		t.Fatalf("expense signed = %d", got.Cents)
	}
	if got := Income.Signed(amt); got.Cents != 3000 {
		t.Fatalf("income signed = %d", got.Cents)
	}
	for _, k := range []TransactionKind{Income, Expense} {
		if sum, err := k.Signed(amt).Add(k.Reversal(amt)); err != nil || !sum.IsZero() {
			t.Fatalf("%s: reversal does not undo creation, sum=%d err=%v", k, sum.Cents, err)
		}
	}
}

func TestAccountSpecValidate(t *testing.T) {
	good := AccountSpec{Name: "Main", Kind: AccountCurrent, Balance: "10.50"}
	bal, err := good.Validate()
	if err != nil || bal.Cents != 1050 {
		t.Fatalf("expected ok, got %d %v", bal.Cents, err)
	}

	bads := []AccountSpec{
		{Name: "", Kind: AccountCurrent, Balance: "1"},
		{Name: "x", Kind: "CHECKING", Balance: "1"},
		{Name: "x", Kind: AccountSavings, Balance: "-1"},
		{Name: "x", Kind: AccountSavings, Balance: "ten"},
	}
	for i, s := range bads {
		if _, err := s.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestTransactionSpecValidate(t *testing.T) {
	good := TransactionSpec{
		AccountID: "a",
		Kind:      Expense,
		Amount:    "3",
		Date:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Category:  "groceries",
	}
	if _, err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Date = time.Time{}
	if _, err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero date: expected validation error, got %v", err)
	}

	bad = good
	bad.Status = "DONE"
	if _, err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status: expected validation error, got %v", err)
	}
}

func TestMonthOf(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on Jan 31 is already February in Rome.
	p := MonthOf(time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC), rome)
	if p.Start.Month() != time.February || p.End.Month() != time.March {
		t.Fatalf("unexpected period %v - %v", p.Start, p.End)
	}
	if p.Start.Day() != 1 || p.Start.Hour() != 0 || !p.End.Equal(p.Start.AddDate(0, 1, 0)) {
		t.Fatalf("period must span whole month: %v - %v", p.Start, p.End)
	}
}

func TestFailResult(t *testing.T) {
	r := Fail[*Account](ErrEmptySelection)
	if r.Success || r.Kind != KindEmptySelection || r.Error != "No transactions found to delete" {
		t.Fatalf("unexpected result %+v", r)
	}
	if KindOf(errors.New("disk I/O error")) != KindStoreFailure {
		t.Fatalf("unclassified errors must map to store failure")
	}
}
