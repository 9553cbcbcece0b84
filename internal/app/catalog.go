package app

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"librarian/pkg/domain"
	"librarian/pkg/storage"
	"librarian/pkg/store"
)

// BookInput carries the fields accepted when creating a book. Available
// copies may be omitted and default to the total.
type BookInput struct {
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	Category        string `json:"category"`
	Publisher       string `json:"publisher"`
	Edition         int    `json:"edition"`
	Pages           int    `json:"pages"`
	Language        string `json:"language"`
	LocationShelf   string `json:"locationShelf"`
	PriceCents      int64  `json:"priceCents"`
	TotalCopies     int    `json:"totalCopies"`
	AvailableCopies *int   `json:"availableCopies"`
}

// BookUpdate carries partial updates; nil fields are left unchanged.
// Copy counts are not updatable here, they move through the loan lifecycle.
type BookUpdate struct {
	Title         *string `json:"title"`
	Subtitle      *string `json:"subtitle"`
	Category      *string `json:"category"`
	Publisher     *string `json:"publisher"`
	Edition       *int    `json:"edition"`
	Pages         *int    `json:"pages"`
	Language      *string `json:"language"`
	LocationShelf *string `json:"locationShelf"`
	PriceCents    *int64  `json:"priceCents"`
	TotalCopies   *int    `json:"totalCopies"`
}

// AddBook validates and stores a new catalog entry.
func (a *App) AddBook(in BookInput) (domain.Book, error) {
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if n := len(in.ISBN); n < 10 || n > 17 {
		return domain.Book{}, invalid("isbn must be 10 to 17 characters")
	}
	if in.Title == "" {
		return domain.Book{}, invalid("title is required")
	}
	if in.Category == "" {
		return domain.Book{}, invalid("category is required")
	}
	if in.TotalCopies < 1 {
		return domain.Book{}, invalid("totalCopies must be at least 1")
	}
	available := in.TotalCopies
	if in.AvailableCopies != nil {
		available = *in.AvailableCopies
	}
	if available < 0 || available > in.TotalCopies {
		return domain.Book{}, invalid("availableCopies must be between 0 and totalCopies")
	}
	edition := in.Edition
	if edition < 1 {
		edition = 1
	}
	book := domain.Book{
		ID:              uuid.NewString(),
		ISBN:            in.ISBN,
		Title:           in.Title,
		Subtitle:        strings.TrimSpace(in.Subtitle),
		Category:        in.Category,
		Publisher:       strings.TrimSpace(in.Publisher),
		Edition:         edition,
		Pages:           in.Pages,
		Language:        strings.TrimSpace(in.Language),
		LocationShelf:   strings.TrimSpace(in.LocationShelf),
		PriceCents:      in.PriceCents,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: available,
	}
	if err := a.store.CreateBook(book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// GetBook loads one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, nil
}

// UpdateBook applies a partial update. Raising totalCopies frees copies;
// lowering it below the number out on loan is rejected by the store's
// consistency check.
func (a *App) UpdateBook(id string, upd BookUpdate) (domain.Book, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return domain.Book{}, invalid("title cannot be empty")
		}
		book.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Subtitle != nil {
		book.Subtitle = strings.TrimSpace(*upd.Subtitle)
	}
	if upd.Category != nil {
		if strings.TrimSpace(*upd.Category) == "" {
			return domain.Book{}, invalid("category cannot be empty")
		}
		book.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Publisher != nil {
		book.Publisher = strings.TrimSpace(*upd.Publisher)
	}
	if upd.Edition != nil {
		if *upd.Edition < 1 {
			return domain.Book{}, invalid("edition must be at least 1")
		}
		book.Edition = *upd.Edition
	}
	if upd.Pages != nil {
		book.Pages = *upd.Pages
	}
	if upd.Language != nil {
		book.Language = strings.TrimSpace(*upd.Language)
	}
	if upd.LocationShelf != nil {
		book.LocationShelf = strings.TrimSpace(*upd.LocationShelf)
	}
	if upd.PriceCents != nil {
		book.PriceCents = *upd.PriceCents
	}
	if upd.TotalCopies != nil {
		if *upd.TotalCopies < 1 {
			return domain.Book{}, invalid("totalCopies must be at least 1")
		}
		onLoan := book.TotalCopies - book.AvailableCopies
		if *upd.TotalCopies < onLoan {
			return domain.Book{}, invalid("totalCopies cannot drop below the %d copies on loan", onLoan)
		}
		book.AvailableCopies = *upd.TotalCopies - onLoan
		book.TotalCopies = *upd.TotalCopies
	}
	if err := a.store.UpdateBook(book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// RemoveBook deletes a book with no open loans, along with its stored cover.
func (a *App) RemoveBook(ctx context.Context, id string) error {
	book, err := a.GetBook(id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(id); err != nil {
		return err
	}
	if a.objects != nil && book.CoverKey != "" {
		if delErr := a.objects.Delete(ctx, book.CoverKey); delErr != nil {
			// Orphaned object only; the catalog row is already gone.
			return nil
		}
	}
	return nil
}

// ListBooks pages through the catalog with optional search and filters.
func (a *App) ListBooks(f store.BookFilter) ([]domain.Book, int64, error) {
	f.Page = f.Page.Normalize()
	return a.store.ListBooks(f)
}

// UploadCover stores a cover image for a book and records its object key.
func (a *App) UploadCover(ctx context.Context, bookID string, r io.Reader, size int64, contentType string) error {
	if a.objects == nil {
		return ErrCoversNotConfigured
	}
	if !strings.HasPrefix(contentType, "image/") {
		return invalid("cover must be an image, got %q", contentType)
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return err
	}
	key := storage.CoverKey(book.ID, contentType)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return err
	}
	return a.store.SetBookCoverKey(book.ID, key)
}

// CoverURL returns a presigned download link for a book's cover image.
func (a *App) CoverURL(ctx context.Context, bookID string) (string, error) {
	if a.objects == nil {
		return "", ErrCoversNotConfigured
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", ErrNoCover
	}
	return a.objects.PresignGet(ctx, book.CoverKey, a.presignExpiry)
}
