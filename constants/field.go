package constants

import (
	"strings"
)

type Field string

const (
	FieldInvoiceNumber Field = "invoiceNumber"
	FieldInvoiceDate   Field = "invoiceDate"
	FieldDueDate       Field = "dueDate"
	FieldVendorName    Field = "vendorName"
	FieldCustomerName  Field = "customerName"
	FieldSubtotal      Field = "subtotal"
	FieldTaxAmount     Field = "taxAmount"
	FieldTotalAmount   Field = "totalAmount"
	FieldCurrency      Field = "currency"
	FieldPONumber      Field = "poNumber"
)

var allFields = []Field{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldDueDate,
	FieldVendorName,
	FieldCustomerName,
	FieldSubtotal,
	FieldTaxAmount,
	FieldTotalAmount,
	FieldCurrency,
	FieldPONumber,
}

func FieldsAsStringSlice() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// CanonicalField maps a user-supplied field name onto a known invoice field.
// Unknown names are returned unchanged with ok=false; custom fields are allowed.
func CanonicalField(input string) (Field, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	normalized := strings.ToLower(trimmed)
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)

	// synonyms map
	synonyms := map[string]Field{
		"invoiceno":     FieldInvoiceNumber,
		"invoiceid":     FieldInvoiceNumber,
		"billnumber":    FieldInvoiceNumber,
		"issuedate":     FieldInvoiceDate,
		"date":          FieldInvoiceDate,
		"supplier":      FieldVendorName,
		"vendor":        FieldVendorName,
		"seller":        FieldVendorName,
		"buyer":         FieldCustomerName,
		"billto":        FieldCustomerName,
		"tax":           FieldTaxAmount,
		"vat":           FieldTaxAmount,
		"total":         FieldTotalAmount,
		"grandtotal":    FieldTotalAmount,
		"amountdue":     FieldTotalAmount,
		"ponumber":      FieldPONumber,
		"purchaseorder": FieldPONumber,
	}

	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == strings.ToLower(string(f)) {
			return f, true
		}
	}

	return Field(trimmed), false
}
