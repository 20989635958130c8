package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/symcache/internal/symstore"
)

// Address is an instruction address. It decodes from a JSON number or a string in any base
// strconv understands and always encodes as a hex string, since JSON numbers lose precision
// above 2^53.
type Address uint64

func (a *Address) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %s", b)
	}
	*a = Address(v)
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a Address) String() string {
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

type SymbolicateRequest struct {
	Cache     string    `json:"cache"`
	Addresses []Address `json:"addresses"`
}

type SymbolicateResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Cache   string          `json:"cache"`
	Results []AddressResult `json:"results"`
}

type AddressResult struct {
	Address Address          `json:"address"`
	Found   bool             `json:"found"`
	Frames  []symstore.Frame `json:"frames"`
	Error   string           `json:"error,omitempty"`
}

type CacheList struct {
	Object string   `json:"object"`
	Data   []string `json:"data"`
}

type FunctionList struct {
	Object string                  `json:"object"`
	Cache  string                  `json:"cache"`
	Offset int                     `json:"offset"`
	Data   []symstore.FunctionInfo `json:"data"`
}

type FileList struct {
	Object string              `json:"object"`
	Cache  string              `json:"cache"`
	Offset int                 `json:"offset"`
	Data   []symstore.FileInfo `json:"data"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}
