package service

import "strings"

// CanonicalizeEmail normalizes an email address for uniqueness checks.
// The whole address is lowercased. Gmail addresses also lose dots and any
// +suffix in the local part, and googlemail.com folds into gmail.com.
func CanonicalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, found := strings.Cut(email, "@")
	if !found {
		return email
	}

	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if domain == "gmail.com" {
		local, _, _ = strings.Cut(local, "+")
		local = strings.ReplaceAll(local, ".", "")
	}

	return local + "@" + domain
}
