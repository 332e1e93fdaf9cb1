// Package rules implements the rule-based extractors: structured files
// (CSV, XLSX) via a multilingual column-alias dictionary, and PDFs via
// text extraction with regex line parsing. The LLM fallback lives in
// pkg/extraction; this package never calls a provider.
package rules

import "strings"

// CanonicalField names a column role in a structured order file.
type CanonicalField string

const (
	FieldSKU          CanonicalField = "sku"
	FieldQty          CanonicalField = "qty"
	FieldUoM          CanonicalField = "uom"
	FieldUnitPrice    CanonicalField = "unit_price"
	FieldDescription  CanonicalField = "description"
	FieldLineTotal    CanonicalField = "line_total"
	FieldLineNo       CanonicalField = "line_no"
	FieldOrderNumber  CanonicalField = "order_number"
	FieldOrderDate    CanonicalField = "order_date"
	FieldCurrency     CanonicalField = "currency"
	FieldDeliveryDate CanonicalField = "delivery_date"
	FieldReference    CanonicalField = "reference"
)

// columnAliases maps canonical fields to known header spellings in
// German, English, and French. Matching is case-insensitive on the
// normalized header.
var columnAliases = map[CanonicalField][]string{
	FieldSKU: {
		"sku", "artikelnummer", "artikel-nr", "artikelnr", "art-nr", "artnr",
		"artikel", "item", "item no", "item number", "part number", "part no",
		"material", "materialnummer", "product code", "product id",
		"référence", "reference article", "ref", "code article", "bestellnummer artikel",
	},
	FieldQty: {
		"qty", "quantity", "menge", "anzahl", "stückzahl", "bestellmenge",
		"quantité", "qte", "qté", "stk", "amount ordered", "order qty",
	},
	FieldUoM: {
		"uom", "unit", "unit of measure", "einheit", "mengeneinheit", "me",
		"unité", "unite", "vpe",
	},
	FieldUnitPrice: {
		"unit price", "price", "einzelpreis", "preis", "stückpreis", "preis/einheit",
		"prix unitaire", "prix", "pu", "price per unit", "netto preis", "nettopreis",
	},
	FieldDescription: {
		"description", "bezeichnung", "beschreibung", "artikelbezeichnung",
		"name", "produkt", "product", "désignation", "designation", "libellé", "libelle",
		"item description", "text", "positionstext",
	},
	FieldLineTotal: {
		"total", "line total", "gesamt", "gesamtpreis", "summe", "betrag",
		"montant", "total ligne", "amount", "netto gesamt",
	},
	FieldLineNo: {
		"line", "line no", "pos", "pos.", "position", "positionsnummer", "nr",
		"no", "n°", "ligne", "zeile", "item#",
	},
	FieldOrderNumber: {
		"order number", "order no", "bestellnummer", "bestell-nr", "bestellnr",
		"auftragsnummer", "po number", "po no", "purchase order",
		"numéro de commande", "no commande", "commande",
	},
	FieldOrderDate: {
		"order date", "date", "datum", "bestelldatum", "auftragsdatum",
		"date de commande", "date commande",
	},
	FieldCurrency: {
		"currency", "währung", "waehrung", "devise", "curr",
	},
	FieldDeliveryDate: {
		"delivery date", "lieferdatum", "liefertermin", "wunschtermin",
		"date de livraison", "livraison", "requested delivery",
	},
	FieldReference: {
		"reference", "referenz", "ihr zeichen", "unser zeichen", "kommission",
		"référence client", "ref client", "customer reference",
	},
}

// normalizeHeader prepares a raw header cell for alias lookup.
func normalizeHeader(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ":;")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// MapHeaders resolves raw header cells to canonical fields. The first
// column claiming a field wins; later duplicates stay unmapped.
func MapHeaders(headers []string) map[int]CanonicalField {
	result := make(map[int]CanonicalField)
	claimed := make(map[CanonicalField]bool)

	for idx, raw := range headers {
		norm := normalizeHeader(raw)
		if norm == "" {
			continue
		}
		if field, ok := lookupAlias(norm); ok && !claimed[field] {
			result[idx] = field
			claimed[field] = true
		}
	}
	return result
}

func lookupAlias(norm string) (CanonicalField, bool) {
	// Exact alias match first, then prefix match for headers carrying
	// units or qualifiers ("Menge (Stk)", "Preis EUR").
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if norm == alias {
				return field, true
			}
		}
	}
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if len(alias) >= 3 && strings.HasPrefix(norm, alias+" ") {
				return field, true
			}
			if len(alias) >= 3 && strings.HasPrefix(norm, alias+"(") {
				return field, true
			}
		}
	}
	return "", false
}

// LooksLikeHeader reports whether a row maps at least two canonical
// fields including one of sku/qty/description, the minimum signal to
// accept it as the header row.
func LooksLikeHeader(cells []string) bool {
	mapped := MapHeaders(cells)
	if len(mapped) < 2 {
		return false
	}
	for _, f := range mapped {
		if f == FieldSKU || f == FieldQty || f == FieldDescription {
			return true
		}
	}
	return false
}
