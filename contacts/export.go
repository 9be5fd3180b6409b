package contacts

import (
	"fmt"
	"io"
	"time"

	"contact-import/common"
	"contact-import/parsers"

	"github.com/gin-gonic/gin"
)

const (
	// ExportBatchSize is the number of records fetched in a single query
	ExportBatchSize = 2000
)

// RegisterRoutes wires the export endpoints
func RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/contacts", StreamContacts)
}

// StreamContacts streams all contacts as a CSV attachment
func StreamContacts(c *gin.Context) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("contacts_%s.csv", timestamp)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Transfer-Encoding", "chunked")

	c.Stream(func(w io.Writer) bool {
		db := common.GetDB()

		header := []string{"id", "email", "first_name", "last_name", "company", "phones", "city", "country", "zip"}
		if err := parsers.WriteRow(w, header, ','); err != nil {
			return false
		}

		offset := 0
		total := 0
		for {
			var batch []ContactModel
			if err := db.Order("created_at ASC").Limit(ExportBatchSize).Offset(offset).Find(&batch).Error; err != nil {
				common.Log().Errorw("contact export query failed", "error", err)
				return false
			}
			if len(batch) == 0 {
				break
			}

			for _, contact := range batch {
				row := []string{
					contact.ID,
					contact.Email,
					contact.FirstName,
					contact.LastName,
					contact.Company,
					contact.Phones,
					contact.City,
					contact.Country,
					contact.Zip,
				}
				if err := parsers.WriteRow(w, row, ','); err != nil {
					return false
				}
			}

			total += len(batch)
			offset += ExportBatchSize
		}

		c.Set("rows_processed", total)
		return false // Done streaming
	})
}
