package extractor

import (
	"encoding/json"
	"os"

	"hccpipe.dev/clinical"
)

func jsonMarshalMsg(msg clinical.UploadedMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
