package registrations

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusconnect/backend/internal/models"
)

// ExportHeader is the stable CSV column order.
var ExportHeader = []string{"name", "email", "event", "college", "year", "status", "attended", "registered_at"}

// ExportRecord renders one registration as a CSV record in ExportHeader
// order. encoding/csv handles quoting, so commas or quotes inside free-text
// fields never corrupt the output.
func ExportRecord(d models.RegistrationDetail) []string {
	return []string{
		d.UserName,
		d.UserEmail,
		d.EventName,
		d.College,
		strconv.Itoa(d.Year),
		string(d.Status),
		strconv.FormatBool(d.Attended),
		d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ExportFilename returns the download name for an export taken now.
func ExportFilename(now time.Time) string {
	return "registrations-" + now.Format("2006-01-02") + ".csv"
}

// WriteCSV streams the filtered registration set as CSV to w, row by row,
// and returns the row count (excluding the header). Aborts when the stream
// context is cancelled via the store's Stream.
func WriteCSV(w io.Writer, stream func(fn func(models.RegistrationDetail) error) error) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, err
	}
	rowCount := 0
	err := stream(func(d models.RegistrationDetail) error {
		rowCount++
		return cw.Write(ExportRecord(d))
	})
	if err != nil {
		return rowCount, err
	}
	cw.Flush()
	return rowCount, cw.Error()
}

// Export handles GET /registrations/export. Applies the exact list filter
// semantics with no pagination and streams rows so the unbounded set is
// never buffered whole. A client disconnect cancels the request context and
// releases the row cursor.
func (h *Handler) Export(c *gin.Context) {
	f := FilterFromQuery(c.Request.URL.Query())

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename(time.Now())+`"`)

	ctx := c.Request.Context()
	_, err := WriteCSV(c.Writer, func(fn func(models.RegistrationDetail) error) error {
		return h.store.Stream(ctx, f, fn)
	})
	if err != nil {
		// Headers are already out; log and drop the connection.
		h.logger.Error("export stream failed", zap.Error(err))
		c.Abort()
	}
}
