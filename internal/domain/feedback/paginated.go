package feedback

// Page represents a paginated response with data and metadata
type Page struct {
	Data       []*Feedback `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	Total      int64       `json:"totalItems"`
	TotalPages int         `json:"totalPages"`
}

// NewPage fills TotalPages from total and pageSize
func NewPage(data []*Feedback, page, pageSize int, total int64) *Page {
	if data == nil {
		data = []*Feedback{}
	}
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Page{Data: data, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}
