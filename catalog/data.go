package catalog

import "time"

// SeedAuthors are inserted into the authors collection.
var SeedAuthors = []Author{
	{
		Name:        "Federico",
		LastName:    "Garcia Lorca",
		DateOfBirth: datePtr(date(1898, time.July, 5)),
		DateOfDeath: datePtr(date(1936, time.August, 18)),
		Country:     "Spain",
	},
	{
		Name:        "Dan",
		LastName:    "Brown",
		DateOfBirth: datePtr(date(1964, time.June, 22)),
		Country:     "USA",
	},
	{
		Name:        "Edgar Allan",
		LastName:    "Poe",
		DateOfBirth: datePtr(date(1809, time.January, 19)),
		DateOfDeath: datePtr(date(1849, time.October, 7)),
		Country:     "USA",
	},
}

// BookSeed describes a book to insert. Author is the name the embedded
// author is looked up by when the book is seeded.
type BookSeed struct {
	Title    string
	Released time.Time
	Category string
	Author   string
}

// SeedBooks are inserted into the books collection after the authors.
var SeedBooks = []BookSeed{
	{Title: "Bodas de sangre", Released: year(1933), Category: "Tragedy", Author: "Federico"},
	{Title: "Romancero gitano", Released: year(1928), Category: "Poetry", Author: "Federico"},
	{Title: "Poeta en Nueva York", Released: year(1940), Category: "Poetry", Author: "Federico"},
	{Title: "Impresiones y paisajes", Released: year(1918), Category: "Prose", Author: "Federico"},
	{Title: "Angels and Demons", Released: year(2000), Category: "Thriller", Author: "Dan"},
	{Title: "The Da Vinci Code", Released: year(2003), Category: "Thriller", Author: "Dan"},
	{Title: "Inferno", Released: year(2017), Category: "Thriller", Author: "Dan"},
	{Title: "The black cat", Released: year(1843), Category: "Horror", Author: "Edgar Allan"},
	{Title: "The oval portrait", Released: year(1842), Category: "Horror", Author: "Edgar Allan"},
	{Title: "Eldorado", Released: year(1849), Category: "Poetry", Author: "Edgar Allan"},
}

// Titles and values the update sequence works with.
const (
	EldoradoTitle = "Eldorado"
	// NewEditionSuffix is appended to the Eldorado title. The coauthor
	// update targets the title without the leading space, which no book
	// ever carries.
	NewEditionSuffix   = " New Edition"
	newEditionTypoName = "EldoradoNew Edition"
)

// EldoradoReissue is the release year pushed onto Eldorado.
var EldoradoReissue = year(2021)
