package sender

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"strconv"
	"strings"

	"github.com/prilive-com/despacho/tg"
)

// FilePart represents a file to be uploaded via multipart.
type FilePart struct {
	FieldName string    // e.g., "video", "photo"
	FileName  string    // e.g., "clip.mp4"
	Reader    io.Reader // File content
}

// MultipartRequest represents a request with files and parameters.
type MultipartRequest struct {
	Files  []FilePart        // Explicit file parts
	Params map[string]string // String-encoded parameters
}

// HasUploads returns true if the request contains file uploads.
func (r MultipartRequest) HasUploads() bool {
	return len(r.Files) > 0
}

// MultipartEncoder encodes requests as multipart/form-data.
type MultipartEncoder struct {
	w *multipart.Writer
}

// NewMultipartEncoder creates a new multipart encoder.
func NewMultipartEncoder(w io.Writer) *MultipartEncoder {
	return &MultipartEncoder{
		w: multipart.NewWriter(w),
	}
}

// ContentType returns the Content-Type header value including boundary.
func (e *MultipartEncoder) ContentType() string {
	return e.w.FormDataContentType()
}

// Close closes the multipart writer.
func (e *MultipartEncoder) Close() error {
	return e.w.Close()
}

// Encode writes the multipart request.
func (e *MultipartEncoder) Encode(req MultipartRequest) error {
	for _, file := range req.Files {
		if err := e.writeFile(file); err != nil {
			return fmt.Errorf("file %s: %w", file.FieldName, err)
		}
	}
	for name, value := range req.Params {
		if err := e.w.WriteField(name, value); err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
	}
	return nil
}

func (e *MultipartEncoder) writeFile(file FilePart) error {
	part, err := e.w.CreateFormFile(file.FieldName, file.FileName)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	// Stream directly - no buffering
	_, err = io.Copy(part, file.Reader)
	return err
}

// BuildMultipartRequest creates a MultipartRequest from a typed request
// struct. Fields tagged for JSON become string params; InputFile fields
// holding local content become file parts.
func BuildMultipartRequest(req any) (MultipartRequest, error) {
	result := MultipartRequest{
		Files:  make([]FilePart, 0),
		Params: make(map[string]string),
	}

	rv := reflect.ValueOf(req)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)

		if !field.IsExported() {
			continue
		}
		// Skip zero values (omitempty behavior)
		if value.IsZero() {
			continue
		}

		fieldName := jsonFieldName(field)
		if fieldName == "-" {
			continue
		}

		switch v := value.Interface().(type) {
		case InputFile:
			if err := addInputFile(&result, fieldName, v); err != nil {
				return result, fmt.Errorf("field %s: %w", fieldName, err)
			}

		case string:
			result.Params[fieldName] = v

		case int:
			result.Params[fieldName] = strconv.Itoa(v)

		case int64:
			result.Params[fieldName] = strconv.FormatInt(v, 10)

		case bool:
			result.Params[fieldName] = strconv.FormatBool(v)

		case tg.ParseMode:
			result.Params[fieldName] = v.String()

		default:
			// Complex types (keyboards, media arrays) -> JSON encode
			data, err := json.Marshal(v)
			if err != nil {
				return result, fmt.Errorf("field %s: JSON marshal: %w", fieldName, err)
			}
			result.Params[fieldName] = string(data)
		}
	}

	return result, nil
}

func addInputFile(req *MultipartRequest, fieldName string, file InputFile) error {
	switch {
	case file.FileID != "":
		req.Params[fieldName] = file.FileID

	case file.URL != "":
		req.Params[fieldName] = file.URL

	case file.Reader != nil || file.Source != nil:
		// The file part carries the field name directly ("video", "photo");
		// attach:// indirection is only needed for media groups.
		req.Files = append(req.Files, FilePart{
			FieldName: fieldName,
			FileName:  file.FileName,
			Reader:    file.OpenReader(),
		})

	default:
		return fmt.Errorf("InputFile must have FileID, URL, or Reader set")
	}
	return nil
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return strings.ToLower(field.Name)
	}
	parts := strings.Split(tag, ",")
	return parts[0]
}
