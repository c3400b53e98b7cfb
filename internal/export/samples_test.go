package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Additional-Code/loom/internal/entity"
)

func TestSamplesWorkbook(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := []*entity.SampleRequest{
		{Number: "SMP-1-0001", Name: "Polo", Color: "navy", Quantity: 3, Status: "draft", CreatedBy: "ana", CreatedAt: at, UpdatedAt: at, Customer: &entity.Customer{Name: "Acme"}},
		{Number: "SMP-1-0002", Name: "Tee", Quantity: 1, Status: "approved", CreatedAt: at, UpdatedAt: at},
	}

	f, err := Samples(rows)
	if err != nil {
		t.Fatalf("Samples() error = %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_ = f.Close()

	back, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer back.Close()

	got, err := back.GetRows(SampleSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(got))
	}
	if got[0][0] != "Number" || got[1][2] != "Acme" || got[1][4] != "3" || got[2][5] != "approved" {
		t.Fatalf("unexpected rows: %v", got)
	}
	if got[1][7] != "2024-03-01 09:30:00" {
		t.Errorf("created at = %q", got[1][7])
	}
}
