// Package catalog is the booksDb bootstrap: the authors and books
// collections, their validators, the sample records, and the fixed
// sequence of updates, reads and deletes run against them.
package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Database and collection names.
const (
	Database          = "booksDb"
	AuthorsCollection = "authors"
	BooksCollection   = "books"
)

// Author is a record of the authors collection.
type Author struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	LastName    string             `bson:"lastName" json:"lastName"`
	DateOfBirth *time.Time         `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	DateOfDeath *time.Time         `bson:"dateOfDeath,omitempty" json:"dateOfDeath,omitempty"`
	Country     string             `bson:"country" json:"country"`
}

// AuthorRef is the copy of an author embedded in a book. It is taken when
// the book is inserted and never refreshed: later changes to the Author
// record do not reach books that already embed it.
type AuthorRef struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	LastName string             `bson:"lastName" json:"lastName"`
}

// Book is a record of the books collection.
type Book struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	ReleaseYear []time.Time        `bson:"releaseYear" json:"releaseYear"`
	Category    string             `bson:"category" json:"category"`
	Authors     []AuthorRef        `bson:"authors,omitempty" json:"authors,omitempty"`
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func year(y int) time.Time { return date(y, time.January, 1) }

func datePtr(t time.Time) *time.Time { return &t }
