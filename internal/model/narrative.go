package model

// ArticleRequest describes an event to the text generator.
type ArticleRequest struct {
	Type        EventType
	Symbol      string
	StockName   string
	Name        string
	Description string
}

// Article is generated narrative for an event. Generated is the raw
// sequence the generator produced, fed back later with its outcome.
type Article struct {
	Headline  string
	Summary   string
	FullText  string
	Generated string
}
