package voucher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// TransferVoucher is the credential handed to the buyer after a sale: proof
// that the registration now belongs to them, presented at bib pickup.
type TransferVoucher struct {
	TransactionID      string    `json:"transaction_id"`
	BibID              string    `json:"bib_id"`
	EventID            string    `json:"event_id"`
	BuyerID            string    `json:"buyer_id"`
	BuyerName          string    `json:"buyer_name,omitempty"`
	RegistrationNumber string    `json:"registration_number"`
	IssuedAt           time.Time `json:"issued_at"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// GenerateQR encodes the encrypted voucher payload as a QR code PNG.
func (g *Generator) GenerateQR(v TransferVoucher) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// Decode reverses GenerateQR's payload encryption, used by organizer-side
// check-in tooling.
func (g *Generator) Decode(payload string) (*TransferVoucher, error) {
	data, err := decryptAES(payload, g.secret)
	if err != nil {
		return nil, err
	}
	var v TransferVoucher
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(payload string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, io.ErrUnexpectedEOF
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	return data, nil
}
