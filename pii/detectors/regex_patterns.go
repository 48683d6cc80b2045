package detectors

// PIIPatterns defines regex patterns for the entity types the built-in detector recognizes
var PIIPatterns = map[string]string{
	"EMAIL_ADDRESS":  `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
	"PHONE_NUMBER":   `\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.][0-9]{4}\b`,
	"US_SSN":         `\b\d{3}-\d{2}-\d{4}\b`,
	"CREDIT_CARD":    `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`,
	"IP_ADDRESS":     `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
	"DATE_OF_BIRTH":  `\b(?:0?[1-9]|1[0-2])[-/](?:0?[1-9]|[12][0-9]|3[01])[-/](?:19|20)\d{2}\b`,
	"US_ZIP_CODE":    `\b\d{5}(?:-\d{4})?\b`,
	"IBAN_CODE":      `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`,
	"US_BANK_NUMBER": `\b(?:account|acct)[\s#:]*\d{8,12}\b`,
}
