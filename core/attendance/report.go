package attendance

import (
	"bytes"
	"embed"
	"encoding/csv"
	htmltmpl "html/template"
	"net/mail"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/roster"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	reportTextTmpl = texttmpl.Must(texttmpl.ParseFS(templatesFS, "templates/report.txt"))
	reportHTMLTmpl = htmltmpl.Must(htmltmpl.ParseFS(templatesFS, "templates/report.html"))
)

type (
	failedRow struct {
		RollNumber  string
		DisplayName string
		Error       string
	}

	reportData struct {
		Course    roster.Course
		Date      string
		Result    string
		Present   int
		Absent    int
		Failed    []failedRow
		Unmatched string
	}
)

// NewReportMessage builds the e-mail sent to faculty after a recognition run,
// with the full batch attached as CSV.
func NewReportMessage(to mail.Address, course roster.Course, entries []roster.Entry, res TakeResult) (*core.EmailMessage, error) {
	byStudent := make(map[string]roster.Entry, len(entries))
	for _, e := range entries {
		byStudent[e.StudentID] = e
	}

	data := reportData{Course: course, Date: res.Date, Result: res.Result.String()}
	for _, r := range res.Records {
		if r.IsPresent() {
			data.Present++
		} else {
			data.Absent++
		}
	}
	for _, f := range res.Result.Failed {
		e := byStudent[f.Record.StudentID]
		data.Failed = append(data.Failed, failedRow{RollNumber: e.RollNumber, DisplayName: e.DisplayName, Error: f.Err.Error()})
	}
	unmatched := make([]string, 0, len(res.Unmatched))
	for _, o := range res.Unmatched {
		unmatched = append(unmatched, o.RollNumber+"-"+o.DisplayName)
	}
	data.Unmatched = strings.Join(unmatched, ", ")

	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Attendance " + course.Code + " " + res.Date,
		TextTemplate: reportTextTmpl,
		HTMLTemplate: reportHTMLTmpl,
		TemplateData: data,
	}

	buf, err := reportCSV(byStudent, res)
	if err != nil {
		return nil, err
	}
	if err = msg.Attach(buf, "attendance-"+course.Code+"-"+res.Date+".csv", "text/csv"); err != nil {
		return nil, errors.Wrap(err, "attaching report")
	}
	return msg, nil
}

func reportCSV(byStudent map[string]roster.Entry, res TakeResult) (*bytes.Buffer, error) {
	failed := make(map[string]string, len(res.Result.Failed))
	for _, f := range res.Result.Failed {
		failed[f.Record.StudentID] = f.Err.Error()
	}

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"roll_number", "name", "date", "status", "error"})
	for _, r := range res.Records {
		e := byStudent[r.StudentID]
		_ = w.Write([]string{e.RollNumber, e.DisplayName, FormatDate(r.Date), string(r.Status), failed[r.StudentID]})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "writing report csv")
	}
	return buf, nil
}
