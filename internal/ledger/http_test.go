package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubLendingService struct {
	book  *Book
	user  *User
	err   error
	input AddBookInput
}

func (s *stubLendingService) BorrowBook(ctx context.Context, bookName, email string) (*Book, *User, error) {
	return s.book, s.user, s.err
}

func (s *stubLendingService) ReturnBook(ctx context.Context, bookName, email string) (*Book, *User, error) {
	return s.book, s.user, s.err
}

func (s *stubLendingService) AddBook(ctx context.Context, input AddBookInput) (*Book, error) {
	s.input = input
	return s.book, s.err
}

type stubCoverStorage struct {
	ref string
	err error
}

func (s *stubCoverStorage) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	return s.ref, s.err
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}

func postJSON(t *testing.T, handler gin.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST(path, handler)
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v body=%s", err, rec.Body.String())
	}
	return payload
}

func TestBorrowHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	service := &stubLendingService{
		book: &Book{ID: uuid.New(), Name: "Dune", Rented: true, BorrowerID: &userID},
		user: &User{ID: userID, Email: "a@x.com"},
	}

	rec := postJSON(t, BorrowHandler(service), "/borrow-book", `{"bookName":"Dune","email":"a@x.com"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["message"] != "Book borrowed successfully." {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	book, ok := payload["book"].(map[string]any)
	if !ok || book["name"] != "Dune" || book["rented"] != true {
		t.Fatalf("unexpected book payload: %v", payload["book"])
	}
	user, ok := payload["user"].(map[string]any)
	if !ok || user["email"] != "a@x.com" {
		t.Fatalf("unexpected user payload: %v", payload["user"])
	}
}

func TestBorrowHandlerInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{}

	rec := postJSON(t, BorrowHandler(service), "/borrow-book", `not-json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestBorrowHandlerBookNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{
		err: newError(CodeBookNotFound, "Book not found.", nil),
	}

	rec := postJSON(t, BorrowHandler(service), "/borrow-book", `{"bookName":"Unknown","email":"a@x.com"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "Book not found." {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestBorrowHandlerConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{
		err: newError(CodeAlreadyRented, "This book is already rented.", nil),
	}

	rec := postJSON(t, BorrowHandler(service), "/borrow-book", `{"bookName":"Dune","email":"a@x.com"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "This book is already rented." {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestReturnHandlerForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{
		err: newError(CodeNotBorrower, "You cannot return a book you haven't borrowed.", nil),
	}

	rec := postJSON(t, ReturnHandler(service), "/return-book", `{"bookName":"Dune","email":"b@x.com"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func addBookRequest(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %s: %v", key, err)
		}
	}
	if fileField != "" {
		fileWriter, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fileWriter.Write(fileData); err != nil {
			t.Fatalf("failed to write file data: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/add-book", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAddBookHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bookID := uuid.New()
	service := &stubLendingService{
		book: &Book{ID: bookID, Name: "Dune", CoverImage: "uploads/123.png"},
	}
	covers := &stubCoverStorage{ref: "uploads/123.png"}

	req := addBookRequest(t, map[string]string{"name": "Dune"}, "coverImage", "cover.png", pngHeader)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/add-book", AddBookHandler(service, covers, 0))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	book, ok := payload["book"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if book["id"] != bookID.String() || book["coverImage"] != "uploads/123.png" {
		t.Fatalf("unexpected book payload: %v", book)
	}
	if book["userId"] != nil {
		t.Fatalf("expected null userId, got %v", book["userId"])
	}
	if service.input.CoverImage != "uploads/123.png" {
		t.Fatalf("service received wrong cover ref: %q", service.input.CoverImage)
	}
}

func TestAddBookHandlerMissingImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{}
	covers := &stubCoverStorage{}

	req := addBookRequest(t, map[string]string{"name": "Dune"}, "", "", nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/add-book", AddBookHandler(service, covers, 0))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "Book name and image are required." {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestAddBookHandlerRejectsNonImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{}
	covers := &stubCoverStorage{}

	req := addBookRequest(t, map[string]string{"name": "Dune"}, "coverImage", "cover.txt", []byte("plain text, not an image"))
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/add-book", AddBookHandler(service, covers, 0))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestAddBookHandlerCoverTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{}
	covers := &stubCoverStorage{}

	req := addBookRequest(t, map[string]string{"name": "Dune"}, "coverImage", "cover.png", pngHeader)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/add-book", AddBookHandler(service, covers, 4))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestAddBookHandlerInvalidUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubLendingService{}
	covers := &stubCoverStorage{}

	req := addBookRequest(t, map[string]string{"name": "Dune", "userId": "not-a-uuid"}, "coverImage", "cover.png", pngHeader)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/add-book", AddBookHandler(service, covers, 0))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
