package compute

import (
	"os"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Keypair is the plain view of an SSH keypair registered with the compute
// service.
type Keypair struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
}

// KeypairList returns all keypairs, keyed by name.
func (c *Client) KeypairList() (map[string]Keypair, error) {
	pages, err := keypairs.List(c.compute).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list keypairs")
	}

	all, err := keypairs.ExtractKeyPairs(pages)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract keypairs")
	}

	ret := map[string]Keypair{}
	for _, kp := range all {
		ret[kp.Name] = Keypair{
			Name:        kp.Name,
			Fingerprint: kp.Fingerprint,
			PublicKey:   kp.PublicKey,
		}
	}
	return ret, nil
}

// KeypairAdd registers a public key under the given name. The key is read
// from pubfile when given, otherwise pubkey is used directly. The key
// material is validated before it is sent anywhere.
func (c *Client) KeypairAdd(name, pubfile, pubkey string) (*Keypair, error) {
	if pubfile != "" {
		b, err := os.ReadFile(pubfile)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't read public key file")
		}
		pubkey = string(b)
	}

	if pubkey == "" {
		return nil, errors.New("no public key material given")
	}

	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkey))
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}

	created, err := keypairs.Create(c.compute, keypairs.CreateOpts{
		Name:      name,
		PublicKey: pubkey,
	}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error creating keypair")
	}

	fingerprint := created.Fingerprint
	if fingerprint == "" {
		fingerprint = ssh.FingerprintLegacyMD5(parsed)
	}

	return &Keypair{
		Name:        created.Name,
		Fingerprint: fingerprint,
		PublicKey:   created.PublicKey,
	}, nil
}

// KeypairDelete deletes the keypair with the given name.
func (c *Client) KeypairDelete(name string) error {
	return errors.Wrap(keypairs.Delete(c.compute, name).ExtractErr(), "error deleting keypair")
}
