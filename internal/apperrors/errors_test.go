package apperrors

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAppErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AppErrors Suite")
}

var _ = Describe("Structured Errors", func() {
	Describe("AppError", func() {
		Context("basic error creation", func() {
			It("should create error with correct properties", func() {
				err := New(ErrorTypeInvalidFile, "not a parsable document")

				Expect(err.Type).To(Equal(ErrorTypeInvalidFile))
				Expect(err.Message).To(Equal("not a parsable document"))
				Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(err.Details).To(BeEmpty())
				Expect(err.Cause).To(BeNil())
			})

			It("should implement error interface correctly", func() {
				err := New(ErrorTypeInvalidFile, "not a parsable document")

				Expect(err.Error()).To(Equal("invalid_file: not a parsable document"))
			})

			It("should include details in error string when present", func() {
				err := New(ErrorTypeInvalidFile, "not a parsable document").WithDetails("0 pages")

				Expect(err.Error()).To(Equal("invalid_file: not a parsable document (0 pages)"))
			})
		})

		Context("error wrapping", func() {
			It("should wrap underlying error", func() {
				originalErr := errors.New("connection reset")
				wrappedErr := Wrap(originalErr, ErrorTypeDatabase, "draft lookup failed")

				Expect(wrappedErr.Type).To(Equal(ErrorTypeDatabase))
				Expect(wrappedErr.Message).To(Equal("draft lookup failed"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
				Expect(wrappedErr.Unwrap()).To(Equal(originalErr))
			})

			It("should format wrapped error with arguments", func() {
				originalErr := errors.New("connection refused")
				wrappedErr := Wrapf(originalErr, ErrorTypeStorageUnavailable, "failed to reach object store at %s:%d", "localhost", 9000)

				Expect(wrappedErr.Message).To(Equal("failed to reach object store at localhost:9000"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
			})
		})

		Context("adding details", func() {
			It("should add details to existing error", func() {
				err := New(ErrorTypeLLMAuthFailed, "provider rejected credentials")
				detailedErr := err.WithDetails("anthropic")

				Expect(detailedErr.Details).To(Equal("anthropic"))
				Expect(detailedErr).To(BeIdenticalTo(err))
			})

			It("should add formatted details", func() {
				err := New(ErrorTypeVersionConflict, "stale draft version")
				detailedErr := err.WithDetailsf("expected %d, stored %d", 3, 5)

				Expect(detailedErr.Details).To(Equal("expected 3, stored 5"))
			})
		})
	})

	Describe("HTTP Status Code Mapping", func() {
		It("should map error types to correct HTTP status codes", func() {
			testCases := []struct {
				errorType  ErrorType
				statusCode int
			}{
				{ErrorTypeInvalidFile, http.StatusBadRequest},
				{ErrorTypeUnsupportedMimeType, http.StatusBadRequest},
				{ErrorTypeFileTooLarge, http.StatusBadRequest},
				{ErrorTypeEmptyFile, http.StatusBadRequest},
				{ErrorTypeFilenameInvalid, http.StatusBadRequest},
				{ErrorTypeValidationRuleFailed, http.StatusBadRequest},
				{ErrorTypeNotFound, http.StatusNotFound},
				{ErrorTypeVersionConflict, http.StatusConflict},
				{ErrorTypeIllegalStateTransition, http.StatusConflict},
				{ErrorTypeAmbiguousCustomer, http.StatusConflict},
				{ErrorTypeLLMTimeout, http.StatusRequestTimeout},
				{ErrorTypeLLMRateLimit, http.StatusTooManyRequests},
				{ErrorTypeLLMAuthFailed, http.StatusUnauthorized},
				{ErrorTypeSftpAuthFailed, http.StatusUnauthorized},
				{ErrorTypeBudgetExceeded, http.StatusPaymentRequired},
				{ErrorTypeLLMServiceUnavailable, http.StatusServiceUnavailable},
				{ErrorTypeStorageUnavailable, http.StatusServiceUnavailable},
				{ErrorTypeDatabase, http.StatusInternalServerError},
				{ErrorTypeDropzoneWriteFailed, http.StatusInternalServerError},
				{ErrorTypeInternal, http.StatusInternalServerError},
			}

			for _, tc := range testCases {
				err := New(tc.errorType, "test message")
				Expect(err.StatusCode).To(Equal(tc.statusCode))
			}
		})
	})

	Describe("Error Type Checking", func() {
		It("should correctly identify error types", func() {
			fileErr := New(ErrorTypeInvalidFile, "bad bytes")
			budgetErr := New(ErrorTypeBudgetExceeded, "daily budget used up")

			Expect(IsType(fileErr, ErrorTypeInvalidFile)).To(BeTrue())
			Expect(IsType(fileErr, ErrorTypeBudgetExceeded)).To(BeFalse())
			Expect(IsType(budgetErr, ErrorTypeBudgetExceeded)).To(BeTrue())
		})

		It("should identify wrapped app errors", func() {
			inner := New(ErrorTypeVersionConflict, "stale version")
			outer := errors.Join(errors.New("while approving draft"), inner)

			Expect(IsType(outer, ErrorTypeVersionConflict)).To(BeTrue())
		})

		It("should handle non-AppError types", func() {
			regularErr := errors.New("regular error")

			Expect(IsType(regularErr, ErrorTypeInvalidFile)).To(BeFalse())
			Expect(GetType(regularErr)).To(Equal(ErrorTypeInternal))
		})

		It("should get correct status codes", func() {
			fileErr := New(ErrorTypeInvalidFile, "bad bytes")
			regularErr := errors.New("regular error")

			Expect(GetStatusCode(fileErr)).To(Equal(http.StatusBadRequest))
			Expect(GetStatusCode(regularErr)).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Safe Error Messages", func() {
		It("should pass input-validation messages through", func() {
			err := New(ErrorTypeUnsupportedMimeType, "application/x-msdownload is not accepted")
			Expect(SafeErrorMessage(err)).To(Equal("application/x-msdownload is not accepted"))
		})

		It("should replace internal messages for sensitive kinds", func() {
			testCases := []struct {
				errorType    ErrorType
				expectedSafe string
			}{
				{ErrorTypeNotFound, ErrorMessages.ResourceNotFound},
				{ErrorTypeVersionConflict, ErrorMessages.ConcurrentModification},
				{ErrorTypeLLMTimeout, ErrorMessages.OperationTimeout},
				{ErrorTypeLLMRateLimit, ErrorMessages.RateLimitExceeded},
				{ErrorTypeBudgetExceeded, ErrorMessages.BudgetExceeded},
				{ErrorTypeStorageUnavailable, ErrorMessages.ServiceUnavailable},
				{ErrorTypeDatabase, "An internal error occurred"},
			}

			for _, tc := range testCases {
				err := New(tc.errorType, "internal details: host db-3.internal")
				Expect(SafeErrorMessage(err)).To(Equal(tc.expectedSafe))
			}
		})

		It("should return generic message for regular errors", func() {
			regularErr := errors.New("internal panic")

			Expect(SafeErrorMessage(regularErr)).To(Equal("An unexpected error occurred"))
		})
	})

	Describe("Logging Fields", func() {
		It("should generate structured logging fields", func() {
			originalErr := errors.New("connection failed")
			appErr := Wrapf(originalErr, ErrorTypeDatabase, "query failed").
				WithDetails("table: draft_orders")

			fields := LogFields(appErr)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_type"))
			Expect(fields).To(HaveKey("status_code"))
			Expect(fields).To(HaveKey("error_details"))
			Expect(fields).To(HaveKey("underlying_error"))

			Expect(fields["error_type"]).To(Equal("database"))
			Expect(fields["status_code"]).To(Equal(http.StatusInternalServerError))
			Expect(fields["error_details"]).To(Equal("table: draft_orders"))
			Expect(fields["underlying_error"]).To(Equal("connection failed"))
		})

		It("should handle simple AppError without details", func() {
			err := New(ErrorTypeEmptyFile, "zero bytes uploaded")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_type"))
			Expect(fields).To(HaveKey("status_code"))
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})

		It("should handle regular errors", func() {
			err := errors.New("regular error")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).NotTo(HaveKey("error_type"))
		})
	})

	Describe("Error Chaining", func() {
		It("should handle empty error list", func() {
			Expect(Chain()).To(BeNil())
		})

		It("should handle single error", func() {
			originalErr := errors.New("single error")
			Expect(Chain(originalErr)).To(Equal(originalErr))
		})

		It("should filter nil errors", func() {
			err1 := errors.New("error 1")
			err2 := errors.New("error 2")

			err := Chain(err1, nil, err2, nil)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("error 1"))
			Expect(err.Error()).To(ContainSubstring("error 2"))
		})

		It("should chain multiple errors", func() {
			err1 := errors.New("first error")
			err2 := errors.New("second error")
			err3 := errors.New("third error")

			chainedErr := Chain(err1, err2, err3)

			Expect(chainedErr).To(HaveOccurred())
			errMsg := chainedErr.Error()
			Expect(errMsg).To(ContainSubstring("first error"))
			Expect(errMsg).To(ContainSubstring("second error"))
			Expect(errMsg).To(ContainSubstring("third error"))
			Expect(errMsg).To(ContainSubstring(" -> "))
		})

		It("should return nil when all errors are nil", func() {
			Expect(Chain(nil, nil, nil)).To(BeNil())
		})
	})
})
