package validators

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Upload and text constraints
const (
	MaxImageSize     = 10 << 20 // 10 MiB
	MinImageSize     = 1 << 10  // 1 KiB
	MaxCaptionLength = 500
	MinSearchLength  = 2
	MaxSearchLength  = 100
)

// unsafeChars are rejected outright in free text, never escaped or stripped
const unsafeChars = `<>"'&`

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var allowedImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

var uuidPattern = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ImageFile describes an uploaded file for validation purposes
type ImageFile struct {
	Name     string
	Size     int64
	MIMEType string
}

// ValidateImageFile checks size bounds, MIME type and file extension. The
// extension is checked even when the MIME type passes, since the MIME type
// is client-supplied and may lie.
func ValidateImageFile(f ImageFile) error {
	if f.Size > MaxImageSize {
		return fmt.Errorf("file too large, maximum size is %s", FormatFileSize(MaxImageSize))
	}
	if f.Size < MinImageSize {
		return fmt.Errorf("file too small, minimum size is %s", FormatFileSize(MinImageSize))
	}

	if !allowedImageTypes[strings.ToLower(f.MIMEType)] {
		return fmt.Errorf("invalid file type, allowed types: JPEG, PNG, WebP, GIF")
	}

	name := strings.ToLower(f.Name)
	for _, ext := range allowedImageExtensions {
		if strings.HasSuffix(name, ext) {
			return nil
		}
	}
	return fmt.Errorf("invalid file extension, allowed extensions: %s", strings.Join(allowedImageExtensions, ", "))
}

// ValidateCaption checks the optional caption text. Length limits count
// characters, not bytes, so multibyte captions are not penalized.
func ValidateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("caption too long, maximum %d characters allowed", MaxCaptionLength)
	}
	if strings.ContainsAny(caption, unsafeChars) {
		return fmt.Errorf("caption contains invalid characters")
	}
	return nil
}

// ValidateUserID accepts only the canonical dashed UUID form
func ValidateUserID(userID string) error {
	if userID == "" || !uuidPattern.MatchString(userID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidatePostID accepts only the canonical dashed UUID form
func ValidatePostID(postID string) error {
	if postID == "" || !uuidPattern.MatchString(postID) {
		return fmt.Errorf("invalid post ID format")
	}
	return nil
}

// ValidateSearchTerm checks a client search query. Empty is a valid query;
// a non-empty one is length bounded and excludes the unsafe character set.
func ValidateSearchTerm(term string) error {
	if term == "" {
		return nil
	}
	length := utf8.RuneCountInString(term)
	if length > MaxSearchLength {
		return fmt.Errorf("search term too long, maximum %d characters allowed", MaxSearchLength)
	}
	if length < MinSearchLength {
		return fmt.Errorf("search term too short, minimum %d characters required", MinSearchLength)
	}
	if strings.ContainsAny(term, unsafeChars) {
		return fmt.Errorf("search term contains invalid characters")
	}
	return nil
}

var (
	unsafeFileChars     = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	repeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// SanitizeFileName rewrites a client-supplied file name into a storage-safe
// token: unsafe characters become underscores, runs collapse and the result
// is lowercased
func SanitizeFileName(fileName string) string {
	s := unsafeFileChars.ReplaceAllString(fileName, "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return strings.ToLower(s)
}

// FormatFileSize renders a byte count for human-readable error messages
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// Inputs collects the optional fields of a single request so they can be
// validated together
type Inputs struct {
	BeforeFile *ImageFile
	AfterFile  *ImageFile
	Caption    *string
	SearchTerm *string
	UserID     *string
	PostID     *string
}

// Result carries every violation found in one pass plus non-fatal warnings
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateInputs checks whichever fields are present, collecting all errors
// instead of stopping at the first. Warnings flag inputs that are legal but
// likely to cause trouble downstream.
func ValidateInputs(in Inputs) Result {
	var errs, warnings []string

	if in.BeforeFile != nil {
		if err := ValidateImageFile(*in.BeforeFile); err != nil {
			errs = append(errs, "before image: "+err.Error())
		}
	}
	if in.AfterFile != nil {
		if err := ValidateImageFile(*in.AfterFile); err != nil {
			errs = append(errs, "after image: "+err.Error())
		}
	}
	if in.Caption != nil {
		if err := ValidateCaption(*in.Caption); err != nil {
			errs = append(errs, "caption: "+err.Error())
		}
	}
	if in.SearchTerm != nil {
		if err := ValidateSearchTerm(*in.SearchTerm); err != nil {
			errs = append(errs, "search term: "+err.Error())
		}
	}
	if in.UserID != nil {
		if err := ValidateUserID(*in.UserID); err != nil {
			errs = append(errs, "user ID: "+err.Error())
		}
	}
	if in.PostID != nil {
		if err := ValidatePostID(*in.PostID); err != nil {
			errs = append(errs, "post ID: "+err.Error())
		}
	}

	if in.Caption != nil && utf8.RuneCountInString(*in.Caption) > 400 {
		warnings = append(warnings, "caption is quite long and may be truncated in some views")
	}
	if in.BeforeFile != nil && in.AfterFile != nil && in.BeforeFile.Size > 0 && in.AfterFile.Size > 0 {
		larger, smaller := in.BeforeFile.Size, in.AfterFile.Size
		if smaller > larger {
			larger, smaller = smaller, larger
		}
		if larger > 10*smaller {
			warnings = append(warnings, "images have very different file sizes, this may affect loading performance")
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}
