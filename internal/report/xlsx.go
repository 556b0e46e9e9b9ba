package report

import (
	"fmt"
	"io"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary      = "Resumo"
	sheetOccupancy    = "Ocupação"
	sheetExpenses     = "Despesas"
	sheetMonthly      = "Receita mensal"
	sheetTransactions = "Transações"
)

// WriteXLSX renders the report as a workbook, one sheet per section.
func WriteXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	summary := [][]interface{}{
		{"Período", fmt.Sprintf("%s - %s", rep.Window.Start.Format("02/01/2006"),
			rep.Window.End.AddDate(0, 0, -1).Format("02/01/2006"))},
		{"Receita", reais(rep.Revenue)},
		{"Despesas", reais(rep.Expenses)},
		{"Lucro", reais(rep.Profit)},
		{"Ocupação (%)", rep.OccupancyRate},
	}
	if err := writeSheet(f, sheetSummary, nil, summary, header); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheetSummary, "B2", "B4", money)

	occupancy := make([][]interface{}, 0, len(rep.Occupancy))
	for _, o := range rep.Occupancy {
		occupancy = append(occupancy, []interface{}{o.Name, o.OccupiedNights, o.WindowNights, o.Rate})
	}
	if err := writeSheet(f, sheetOccupancy, []string{"Apartamento", "Noites ocupadas", "Noites no período", "Ocupação (%)"}, occupancy, header); err != nil {
		return err
	}

	expenses := make([][]interface{}, 0, len(rep.ExpensesByCategory))
	for _, c := range rep.ExpensesByCategory {
		expenses = append(expenses, []interface{}{string(c.Category), reais(c.Total)})
	}
	if err := writeSheet(f, sheetExpenses, []string{"Categoria", "Total"}, expenses, header); err != nil {
		return err
	}

	monthly := make([][]interface{}, 0, len(rep.RevenueByMonth))
	for _, m := range rep.RevenueByMonth {
		monthly = append(monthly, []interface{}{m.Month, reais(m.Total)})
	}
	if err := writeSheet(f, sheetMonthly, []string{"Mês", "Receita"}, monthly, header); err != nil {
		return err
	}

	transactions := make([][]interface{}, 0, len(rep.Transactions))
	for _, t := range rep.Transactions {
		amount := reais(t.Amount)
		if t.Kind == TransactionExpense {
			amount = -amount
		}
		transactions = append(transactions, []interface{}{t.Date.Format(daterange.Layout), string(t.Kind), t.Description, amount})
	}
	if err := writeSheet(f, sheetTransactions, []string{"Data", "Tipo", "Descrição", "Valor"}, transactions, header); err != nil {
		return err
	}

	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, columns []string, rows [][]interface{}, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", name, err)
	}

	row := 1
	if len(columns) > 0 {
		for i, c := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(name, cell, c)
		}
		last, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(name, "A1", last, headerStyle)
		row = 2
	}

	for _, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("error writing %s row %d: %w", name, row, err)
		}
		row++
	}

	_ = f.SetColWidth(name, "A", "A", 25)
	_ = f.SetColWidth(name, "B", "D", 18)
	return nil
}

func reais(centavos int64) float64 {
	return float64(centavos) / 100
}
