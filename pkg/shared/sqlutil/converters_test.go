/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlutil_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aliuyar1234/orderflow/pkg/shared/sqlutil"
)

func TestSqlutil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sqlutil Suite")
}

var _ = Describe("SQL Null Converters", func() {
	// The repositories lean on these for nullable columns: ERP
	// references on exports, resolved-at timestamps on issues,
	// customer ids on drafts, unit prices on lines.

	Describe("string columns", func() {
		It("should store a missing ERP reference as NULL", func() {
			Expect(sqlutil.ToNullString(nil).Valid).To(BeFalse())
			Expect(sqlutil.ToNullStringValue("").Valid).To(BeFalse())
		})

		It("should treat an empty pointer target as NULL too", func() {
			empty := ""
			Expect(sqlutil.ToNullString(&empty).Valid).To(BeFalse())
		})

		It("should round-trip a present ERP reference", func() {
			ref := "SO-2025-000123"
			stored := sqlutil.ToNullString(&ref)
			Expect(stored.Valid).To(BeTrue())
			Expect(stored.String).To(Equal("SO-2025-000123"))

			back := sqlutil.FromNullString(stored)
			Expect(back).NotTo(BeNil())
			Expect(*back).To(Equal(ref))
		})

		It("should read NULL back as a nil pointer", func() {
			Expect(sqlutil.FromNullString(sqlutil.ToNullStringValue(""))).To(BeNil())
		})
	})

	Describe("uuid columns", func() {
		It("should store an unassigned customer as NULL", func() {
			Expect(sqlutil.ToNullUUID(nil).Valid).To(BeFalse())
		})

		It("should store an assigned customer as its canonical string", func() {
			customerID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
			stored := sqlutil.ToNullUUID(&customerID)

			Expect(stored.Valid).To(BeTrue())
			Expect(stored.String).To(Equal("11111111-2222-3333-4444-555555555555"))
		})
	})

	Describe("time columns", func() {
		It("should store an unresolved issue's resolved_at as NULL", func() {
			Expect(sqlutil.ToNullTime(nil).Valid).To(BeFalse())
			Expect(sqlutil.FromNullTime(sqlutil.ToNullTime(nil))).To(BeNil())
		})

		It("should round-trip a resolution timestamp", func() {
			resolvedAt := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
			stored := sqlutil.ToNullTime(&resolvedAt)
			Expect(stored.Valid).To(BeTrue())

			back := sqlutil.FromNullTime(stored)
			Expect(back).NotTo(BeNil())
			Expect(back.Equal(resolvedAt)).To(BeTrue())
		})
	})

	Describe("int64 columns", func() {
		It("should store an unpriced line as NULL", func() {
			Expect(sqlutil.ToNullInt64(nil).Valid).To(BeFalse())
			Expect(sqlutil.FromNullInt64(sqlutil.ToNullInt64(nil))).To(BeNil())
		})

		It("should round-trip a unit price in micros", func() {
			priceMicros := int64(1_230_000)
			stored := sqlutil.ToNullInt64(&priceMicros)
			Expect(stored.Valid).To(BeTrue())
			Expect(stored.Int64).To(Equal(int64(1_230_000)))

			back := sqlutil.FromNullInt64(stored)
			Expect(back).NotTo(BeNil())
			Expect(*back).To(Equal(priceMicros))
		})

		It("should keep a zero price distinct from NULL", func() {
			free := int64(0)
			stored := sqlutil.ToNullInt64(&free)
			Expect(stored.Valid).To(BeTrue(), "free-of-charge lines are priced, not unpriced")
		})
	})

	Describe("pointer independence", func() {
		It("should copy values out rather than aliasing the column", func() {
			original := "K-1001"
			stored := sqlutil.ToNullString(&original)

			back := sqlutil.FromNullString(stored)
			original = "changed"

			Expect(*back).To(Equal("K-1001"))
		})
	})
})
