package main

import (
	"net/http"
	"strconv"
	"time"

	"lms/pkg/auth"
	"lms/pkg/borrowing"
	"lms/pkg/catalog"
	apperrors "lms/pkg/errors"
	"lms/pkg/models"
	"lms/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	UserName string `json:"userName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type borrowRequest struct {
	BookIDs []string `json:"bookIds"`
}

type statusRequest struct {
	Status *int `json:"status" binding:"required"`
}

func userResponse(u *models.User) gin.H {
	return gin.H{
		"id":       u.ID,
		"userName": u.UserName,
		"email":    u.Email,
		"role":     u.Role,
	}
}

func respondError(c *gin.Context, err error) {
	se := apperrors.From(err)
	if se.HTTPStatus() >= http.StatusInternalServerError {
		appLogger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.JSON(se.HTTPStatus(), se)
}

func badRequest(c *gin.Context, err error) {
	respondError(c, apperrors.NewInvalidRequest("invalid request body", err.Error()))
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil {
		size = models.DefaultPageSize
	}
	return models.NormalizePaging(page, size)
}

// statusParam reads ?status=. Absent or -1 means all statuses; anything
// else must be a known status.
func statusParam(c *gin.Context) (*models.Status, bool) {
	raw := c.Query("status")
	if raw == "" || raw == "-1" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err == nil {
		if s := models.ParseStatusFilter(v); s != nil {
			return s, true
		}
	}
	respondError(c, apperrors.NewInvalidRequest("invalid status filter", "status: "+raw))
	return nil, false
}

func requestIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperrors.NewInvalidRequest("invalid borrowing request id", "ID: "+c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// ownerOrLibrarian lets readers see only their own requests.
func ownerOrLibrarian(c *gin.Context, ownerID string) bool {
	if auth.HasRole(c, models.RoleSuperUser) || auth.UserID(c) == ownerID {
		return true
	}
	respondError(c, apperrors.New(apperrors.CodeForbidden, "cannot access another user's borrowing requests", ""))
	return false
}

func register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := accounts.Register(c.Request.Context(), users.RegisterInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse(user))
}

func login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, expiresAt, err := tokens.Issue(user.ID, user.Role)
	if err != nil {
		respondError(c, apperrors.NewInternalError("failed to issue token", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"type":      "Bearer",
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"user":      userResponse(user),
	})
}

func listBooks(c *gin.Context) {
	page, size := pageParams(c)
	categoryID, _ := strconv.ParseUint(c.Query("categoryId"), 10, 64)

	result, err := books.ListBooks(c.Request.Context(), catalog.BookFilter{
		Search:     c.Query("search"),
		CategoryID: uint(categoryID),
		PageIndex:  page,
		PageSize:   size,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getBook(c *gin.Context) {
	book, err := books.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func createBook(c *gin.Context) {
	var in catalog.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	book, err := books.AddBook(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func updateBook(c *gin.Context) {
	var in catalog.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	book, err := books.UpdateBook(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func deleteBook(c *gin.Context) {
	if err := books.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listCategories(c *gin.Context) {
	categories, err := books.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	category, err := books.AddCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func createBorrowRequest(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := borrowings.CreateBorrowingRequest(c.Request.Context(), auth.UserID(c), req.BookIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := borrowings.GetBorrowingRequestByID(c.Request.Context(), created.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func updateBorrowRequestStatus(c *gin.Context) {
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := borrowings.UpdateBorrowingRequestStatus(c.Request.Context(), id, models.Status(*req.Status), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := borrowings.GetBorrowingRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func listBorrowRequests(c *gin.Context) {
	status, ok := statusParam(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	result, err := borrowings.ListBorrowingRequests(c.Request.Context(), status, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getBorrowRequest(c *gin.Context) {
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	detail, err := borrowings.GetBorrowingRequestByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ownerOrLibrarian(c, detail.RequestorID) {
		return
	}
	c.JSON(http.StatusOK, detail)
}

func deleteBorrowRequest(c *gin.Context) {
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	if err := borrowings.DeleteBorrowingRequest(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listUserBorrowRequests(c *gin.Context) {
	userID := c.Param("userId")
	if !ownerOrLibrarian(c, userID) {
		return
	}
	status, ok := statusParam(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	result, err := borrowings.ListBorrowingRequestsByUser(c.Request.Context(), userID, status, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getMonthlyCount(c *gin.Context) {
	userID := c.Param("userId")
	if !ownerOrLibrarian(c, userID) {
		return
	}
	count, err := borrowings.GetMonthlyRequestCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	remaining := borrowing.MonthlyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"count":     count,
		"limit":     borrowing.MonthlyLimit,
		"remaining": remaining,
	})
}
