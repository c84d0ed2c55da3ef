package inbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// maxPartDepth bounds multipart nesting when building a part tree
const maxPartDepth = 16

// ReadRawMessage parses an RFC 5322 message into a RawMessage. Header values
// are RFC 2047 decoded and leaf bodies are transfer- and charset-decoded, so
// leaves carry EncodingIdentity. Non-text leaves such as attachments are kept
// in the tree without data.
func ReadRawMessage(r io.Reader, id string) (RawMessage, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return RawMessage{}, fmt.Errorf("failed to parse message: %w", err)
	}

	raw := RawMessage{ID: id}
	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		raw.Headers = append(raw.Headers, HeaderField{Name: fields.Key(), Value: value})
	}

	if raw.ID == "" {
		raw.ID = strings.Trim(raw.Header("Message-Id"), "<> ")
	}

	raw.Root = readPart(entity, 0)
	return raw, nil
}

// readPart converts an entity into a Part. Read errors inside a part end
// that part early rather than failing the message.
func readPart(e *message.Entity, depth int) Part {
	mediaType, _, _ := e.Header.ContentType()
	part := Part{MIMEType: mediaType, Encoding: EncodingIdentity}

	if mr := e.MultipartReader(); mr != nil {
		if depth >= maxPartDepth {
			return part
		}
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if child == nil || (err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err)) {
				break
			}
			part.Children = append(part.Children, readPart(child, depth+1))
		}
		return part
	}

	if mediaType != "" && !strings.HasPrefix(mediaType, "text/") {
		return part
	}
	data, err := io.ReadAll(e.Body)
	if err != nil && len(data) == 0 {
		return part
	}
	part.Data = data
	return part
}
