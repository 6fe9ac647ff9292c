// Package export renders classifications as spreadsheets.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"rallytiming/internal/classify"
)

const maxSheetName = 31

// Workbook builds one sheet per category: rank, vehicle, driver, team, one
// column per stage (h:mm:ss adjusted time, blank when missing), completed
// stages and total. Anomalies, when present, get their own sheet.
func Workbook(c classify.Classification) (*excelize.File, error) {
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1c399e"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Font:      &excelize.Font{Bold: true, Color: "ffffff"},
	})
	if err != nil {
		return nil, err
	}
	uncountedStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Italic: true, Color: "808080"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return nil, err
	}
	flaggedStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"f71e1e"}},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return nil, err
	}

	orders := stageOrders(c)
	header := []any{"Rank", "Vehicle", "Driver", "Team"}
	for _, o := range orders {
		header = append(header, "Stage "+strconv.Itoa(o))
	}
	header = append(header, "Completed", "Total", "Total (s)")

	used := map[string]bool{}
	first := true
	for _, st := range c.Categories {
		name := uniqueSheetName(st.CategoryName, st.CategoryID, used)
		if err := addSheet(f, name, first); err != nil {
			return nil, err
		}
		first = false
		if err := writeRow(f, name, 1, header); err != nil {
			return nil, err
		}
		if err := styleRow(f, name, 1, len(header), headerStyle); err != nil {
			return nil, err
		}
		for i, row := range st.Rows {
			r := i + 2
			values := []any{row.Rank, row.VehicleName, row.DriverName, deref(row.TeamName)}
			cells := map[int]classify.StageTime{}
			for _, t := range row.StageTimes {
				cells[t.StageOrder] = t
			}
			for _, o := range orders {
				t, ok := cells[o]
				if !ok || t.AdjustedTimeSeconds == nil {
					values = append(values, nil)
					continue
				}
				values = append(values, FormatClock(*t.AdjustedTimeSeconds))
			}
			values = append(values, row.CompletedStages, FormatClock(row.TotalTime), row.TotalTime)
			if err := writeRow(f, name, r, values); err != nil {
				return nil, err
			}
			for j, o := range orders {
				t, ok := cells[o]
				if !ok || t.AdjustedTimeSeconds == nil {
					continue
				}
				style := 0
				switch {
				case len(t.Flags) > 0:
					style = flaggedStyle
				case !t.Counted:
					style = uncountedStyle
				}
				if style == 0 {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(5+j, r)
				if err := f.SetCellStyle(name, cell, cell, style); err != nil {
					return nil, err
				}
			}
		}
		_ = f.SetColWidth(name, "B", "D", 22)
	}

	if first {
		// no categories: keep a single labelled sheet
		if err := addSheet(f, "Classification", true); err != nil {
			return nil, err
		}
		if err := writeRow(f, "Classification", 1, []any{c.EventName, "no classified vehicles"}); err != nil {
			return nil, err
		}
	}

	if len(c.Anomalies) > 0 {
		name := uniqueSheetName("Anomalies", 0, used)
		if err := addSheet(f, name, false); err != nil {
			return nil, err
		}
		if err := writeRow(f, name, 1, []any{"Kind", "Vehicle", "Stage", "Message"}); err != nil {
			return nil, err
		}
		if err := styleRow(f, name, 1, 4, headerStyle); err != nil {
			return nil, err
		}
		for i, a := range c.Anomalies {
			if err := writeRow(f, name, i+2, []any{string(a.Kind), a.VehicleID, a.StageOrder, a.Message}); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// FormatClock renders seconds as h:mm:ss; negative values get a leading minus.
func FormatClock(secs int64) string {
	sign := ""
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, secs/3600, secs/60%60, secs%60)
}

func stageOrders(c classify.Classification) []int {
	seen := map[int]bool{}
	var out []int
	for _, st := range c.Categories {
		for _, row := range st.Rows {
			for _, t := range row.StageTimes {
				if !seen[t.StageOrder] {
					seen[t.StageOrder] = true
					out = append(out, t.StageOrder)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// addSheet renames the default sheet for the first one so the workbook never
// carries an empty "Sheet1".
func addSheet(f *excelize.File, name string, first bool) error {
	if first {
		return f.SetSheetName(f.GetSheetName(0), name)
	}
	_, err := f.NewSheet(name)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	from, _ := excelize.CoordinatesToCellName(1, row)
	to, _ := excelize.CoordinatesToCellName(cols, row)
	return f.SetCellStyle(sheet, from, to, style)
}

var sheetNameReplacer = strings.NewReplacer(":", "-", "\\", "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")")

func uniqueSheetName(name string, id int64, used map[string]bool) string {
	base := strings.Trim(sheetNameReplacer.Replace(strings.TrimSpace(name)), "'")
	if base == "" {
		base = "Category " + strconv.FormatInt(id, 10)
	}
	candidate := truncate(base, maxSheetName)
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		candidate = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
