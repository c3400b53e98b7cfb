package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/loom/internal/entity"
)

func TestDateAcceptsCalendarAndTimestamp(t *testing.T) {
	var body struct {
		A *Date `json:"a"`
		B *Date `json:"b"`
		C *Date `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"2024-05-01","b":"2024-05-02T10:00:00+02:00","c":null}`), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := body.A.Ptr(); got == nil || got.Format(DateLayout) != "2024-05-01" {
		t.Errorf("a = %v", got)
	}
	if got := body.B.Ptr(); got == nil || got.Hour() != 8 {
		t.Errorf("b = %v", got)
	}
	if body.C.Ptr() != nil {
		t.Errorf("c = %v", body.C)
	}

	var bad struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"01/05/2024"}`), &bad); err == nil {
		t.Fatal("expected an error for an unknown layout")
	}
}

func TestSalesOrderLineTotals(t *testing.T) {
	due := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	resp := SalesOrder(&entity.SalesOrder{
		OrderDate:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DeliveryDate: &due,
		TotalAmount:  decimal.RequireFromString("125.50"),
		Items: []*entity.SalesOrderItem{
			{Style: "Polo", Quantity: 10, UnitPrice: decimal.RequireFromString("12.55")},
		},
	}, nil)
	if resp.OrderDate != "2024-06-01" || resp.DeliveryDate == nil || *resp.DeliveryDate != "2024-06-30" {
		t.Fatalf("dates = %s / %v", resp.OrderDate, resp.DeliveryDate)
	}
	if !resp.Items[0].LineTotal.Equal(decimal.RequireFromString("125.5")) {
		t.Errorf("line total = %s", resp.Items[0].LineTotal)
	}
	if resp.History != nil {
		t.Errorf("list rows must not carry history")
	}
}

func TestInspectionDefectRate(t *testing.T) {
	key := "inspections/QC-1/report.pdf"
	resp := Inspection(&entity.Inspection{SampleSize: 50, DefectCount: 5, ReportKey: &key})
	if resp.DefectRate != 0.1 || !resp.HasReport {
		t.Fatalf("resp = %+v", resp)
	}
}
