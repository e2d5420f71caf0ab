package compute

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	th "github.com/gophercloud/gophercloud/testhelper"
	fake "github.com/gophercloud/gophercloud/testhelper/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testPublicKey(t *testing.T) (ssh.PublicKey, string) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return sshPub, strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
}

func TestKeypairList(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/os-keypairs", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		th.TestHeader(t, r, "X-Auth-Token", fake.TokenID)
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"keypairs": [
				{"keypair": {"name": "deploy", "fingerprint": "aa:bb:cc", "public_key": "ssh-rsa AAAA..."}}
			]
		}`)
	})

	c := testClient()
	ret, err := c.KeypairList()
	require.NoError(t, err)
	require.Len(t, ret, 1)
	assert.Equal(t, "aa:bb:cc", ret["deploy"].Fingerprint)
}

func TestKeypairAdd(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	sshPub, authorized := testPublicKey(t)

	th.Mux.HandleFunc("/os-keypairs", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"keypair": {"name": "deploy", "public_key": %q, "fingerprint": ""}}`, authorized)
	})

	c := testClient()
	kp, err := c.KeypairAdd("deploy", "", authorized)
	require.NoError(t, err)
	assert.Equal(t, "deploy", kp.Name)

	// service reported no fingerprint, so it is computed locally
	assert.Equal(t, ssh.FingerprintLegacyMD5(sshPub), kp.Fingerprint)
}

func TestKeypairAdd_FromFile(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	_, authorized := testPublicKey(t)
	pubfile := filepath.Join(t.TempDir(), "id_ed25519.pub")
	require.NoError(t, os.WriteFile(pubfile, []byte(authorized+"\n"), 0600))

	th.Mux.HandleFunc("/os-keypairs", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"keypair": {"name": "deploy", "public_key": %q, "fingerprint": "dd:ee:ff"}}`, authorized)
	})

	c := testClient()
	kp, err := c.KeypairAdd("deploy", pubfile, "")
	require.NoError(t, err)
	assert.Equal(t, "dd:ee:ff", kp.Fingerprint)
}

func TestKeypairAdd_InvalidKey(t *testing.T) {
	c := testClient()

	_, err := c.KeypairAdd("deploy", "", "not a key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid public key")

	_, err = c.KeypairAdd("deploy", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no public key material")
}

func TestKeypairDelete(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/os-keypairs/deploy", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "DELETE")
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, testClient().KeypairDelete("deploy"))
}
