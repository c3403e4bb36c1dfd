package ledger

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LendingService は HTTP ハンドラーが利用する台帳操作です。
type LendingService interface {
	BorrowBook(ctx context.Context, bookName, email string) (*Book, *User, error)
	ReturnBook(ctx context.Context, bookName, email string) (*Book, *User, error)
	AddBook(ctx context.Context, input AddBookInput) (*Book, error)
}

// CoverStorage は表紙画像を保存し、保存先の参照を返すコラボレーターです。
type CoverStorage interface {
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
}

// lendingRequest は貸出・返却の両エンドポイント共通のリクエストボディです。
type lendingRequest struct {
	BookName string `json:"bookName"`
	Email    string `json:"email"`
}

// BorrowHandler は POST /borrow-book のハンドラーを返します。
func BorrowHandler(svc LendingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lendingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Book Name and Email are required.",
			})
			return
		}

		book, user, err := svc.BorrowBook(c.Request.Context(), req.BookName, req.Email)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Book borrowed successfully.",
			"book": gin.H{
				"name":   book.Name,
				"rented": book.Rented,
			},
			"user": gin.H{
				"email": user.Email,
			},
		})
	}
}

// ReturnHandler は POST /return-book のハンドラーを返します。
// 識別は貸出と同じ蔵書名・メールアドレス方式に統一しています。
func ReturnHandler(svc LendingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lendingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Book Name and Email are required.",
			})
			return
		}

		book, user, err := svc.ReturnBook(c.Request.Context(), req.BookName, req.Email)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Book returned successfully.",
			"book": gin.H{
				"name":   book.Name,
				"rented": book.Rented,
			},
			"user": gin.H{
				"email": user.Email,
			},
		})
	}
}

// AddBookHandler は POST /add-book のハンドラーを返します。
// multipart/form-data で name フィールドと coverImage ファイルを受け取ります。
func AddBookHandler(svc LendingService, covers CoverStorage, maxCoverSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.PostForm("name"))
		fileHeader, err := c.FormFile("coverImage")
		if name == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Book name and image are required.",
			})
			return
		}

		if maxCoverSize > 0 && fileHeader.Size > maxCoverSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Cover image is too large.",
			})
			return
		}

		rented := false
		if raw := strings.TrimSpace(c.PostForm("rented")); raw != "" {
			rented, err = strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "rented must be a boolean.",
				})
				return
			}
		}

		var userID *uuid.UUID
		if raw := strings.TrimSpace(c.PostForm("userId")); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "userId is not a valid ID.",
				})
				return
			}
			userID = &parsed
		}

		if err := verifyCoverImage(fileHeader); err != nil {
			respondWithError(c, err)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer file.Close()

		ref, err := covers.Save(c.Request.Context(), fileHeader.Filename, file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		book, err := svc.AddBook(c.Request.Context(), AddBookInput{
			Name:       name,
			CoverImage: ref,
			Rented:     rented,
			UserID:     userID,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		var userIDValue any
		if book.BorrowerID != nil {
			userIDValue = book.BorrowerID.String()
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "Book added successfully",
			"book": gin.H{
				"id":         book.ID.String(),
				"name":       book.Name,
				"coverImage": book.CoverImage,
				"rented":     book.Rented,
				"userId":     userIDValue,
			},
		})
	}
}

// verifyCoverImage は先頭バイトのMIME判定で画像ファイルであることを確認します。
func verifyCoverImage(fileHeader *multipart.FileHeader) error {
	file, err := fileHeader.Open()
	if err != nil {
		return newError(CodeInternal, "Something went wrong while adding the book.", err)
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return newError(CodeInternal, "Something went wrong while adding the book.", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return newError(CodeInvalidInput, "coverImage must be an image file.", nil)
	}
	return nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		status := http.StatusBadRequest
		switch apiErr.Code {
		case CodeUserNotFound, CodeBookNotFound:
			status = http.StatusNotFound
		case CodeInternal:
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
}
