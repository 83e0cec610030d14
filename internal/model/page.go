package model

// Headings groups the h1-h3 texts of a page in document order.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// Image is an <img> reference found on a page.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// PageRecord is a fetched page that passed validation. It is never modified
// after creation.
type PageRecord struct {
	URL             string   `json:"url"`
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Headings        Headings `json:"headings"`
	Links           []string `json:"links"`
	Images          []Image  `json:"images"`
	Text            string   `json:"text"`
	RawHTML         string   `json:"-"`
	CrawledAt       string   `json:"crawled_at"`
}
