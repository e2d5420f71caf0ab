package compute

import (
	gocontext "context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	th "github.com/gophercloud/gophercloud/testhelper"
	fake "github.com/gophercloud/gophercloud/testhelper/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const volumeID = "521752a6-acf6-4b2d-bc7a-119f9148cd8c"

func volumeJSON(status string, attached bool) string {
	attachments := "[]"
	if attached {
		attachments = fmt.Sprintf(
			`[{"id": "%s", "device": "/dev/xvdb", "server_id": "ef079b0c-e610-4dfb-b1aa-b49f07ac48e5", "volume_id": "%s"}]`,
			volumeID, volumeID)
	}
	return fmt.Sprintf(`{
		"id": "%s",
		"name": "scratch",
		"description": "build scratch space",
		"size": 100,
		"status": "%s",
		"attachments": %s
	}`, volumeID, status, attachments)
}

func handleVolumeList(t *testing.T, status string, attached bool) {
	th.Mux.HandleFunc("/volumes/detail", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		th.TestHeader(t, r, "X-Auth-Token", fake.TokenID)
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"volumes": [%s]}`, volumeJSON(status, attached))
	})
}

func TestVolumeList(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "available", false)

	c := testClient()
	ret, err := c.VolumeList(VolumeListOpts{})
	require.NoError(t, err)
	require.Len(t, ret, 1)

	vol := ret["scratch"]
	assert.Equal(t, volumeID, vol.ID)
	assert.Equal(t, 100, vol.Size)
	assert.Equal(t, "build scratch space", vol.Description)
	assert.Equal(t, "available", vol.Status)
	assert.Empty(t, vol.Attachments)
}

func TestVolumeShow(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "in-use", true)

	c := testClient()
	vol, err := c.VolumeShow("scratch")
	require.NoError(t, err)
	assert.Equal(t, volumeID, vol.ID)
	require.Len(t, vol.Attachments, 1)
	assert.Equal(t, "/dev/xvdb", vol.Attachments[0].Device)

	_, err = c.VolumeShow("nope")
	require.Error(t, err)
	_, ok := err.(*NotFoundError)
	assert.True(t, ok)
}

func TestVolumeCreate(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/volumes", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		th.TestJSONRequest(t, r, `{
			"volume": {
				"name": "scratch",
				"size": 100,
				"snapshot_id": "snap-001",
				"volume_type": "ssd"
			}
		}`)
		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"volume": %s}`, volumeJSON("creating", false))
	})
	th.Mux.HandleFunc("/volumes/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"volume": %s}`, volumeJSON("available", false))
	})

	c := testClient()
	vol, err := c.VolumeCreate("scratch", 100, "snap-001", "ssd")
	require.NoError(t, err)
	assert.Equal(t, "available", vol.Status)
	assert.Equal(t, 100, vol.Size)
}

func TestVolumeDelete(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "available", false)

	th.Mux.HandleFunc("/volumes/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "DELETE")
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, testClient().VolumeDelete("scratch"))
}

func TestVolumeAttach_PollsUntilInUse(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "available", false)
	handleServerListDetail(t)

	th.Mux.HandleFunc("/servers/ef079b0c-e610-4dfb-b1aa-b49f07ac48e5/os-volume_attachments", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"volumeAttachment": {"id": "%s", "device": "/dev/xvdb", "serverId": "ef079b0c-e610-4dfb-b1aa-b49f07ac48e5", "volumeId": "%s"}}`, volumeID, volumeID)
	})

	var gets int64
	th.Mux.HandleFunc("/volumes/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		w.Header().Add("Content-Type", "application/json")
		status := "attaching"
		if atomic.AddInt64(&gets, 1) > 2 {
			status = "in-use"
		}
		fmt.Fprintf(w, `{"volume": %s}`, volumeJSON(status, status == "in-use"))
	})

	c := testClient()
	vol, err := c.VolumeAttach(gocontext.TODO(), "scratch", "herp", "/dev/xvdb", 0)
	require.NoError(t, err)
	assert.Equal(t, "in-use", vol.Status)
	assert.EqualValues(t, 3, atomic.LoadInt64(&gets))
}

func TestVolumeAttach_Timeout(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "available", false)
	handleServerListDetail(t)

	th.Mux.HandleFunc("/servers/ef079b0c-e610-4dfb-b1aa-b49f07ac48e5/os-volume_attachments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"volumeAttachment": {"id": "%s", "volumeId": "%s"}}`, volumeID, volumeID)
	})
	th.Mux.HandleFunc("/volumes/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		fmt.Fprintf(w, `{"volume": %s}`, volumeJSON("attaching", false))
	})

	c := testClient()
	_, err := c.VolumeAttach(gocontext.TODO(), "scratch", "herp", "/dev/xvdb", 20*time.Millisecond)
	require.Error(t, err)

	wte, ok := err.(*WaitTimeoutError)
	require.True(t, ok)
	assert.Equal(t, "attach", wte.Op)
	assert.Equal(t, "scratch", wte.Resource)
}

func TestVolumeDetach_PollsUntilAvailable(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "in-use", true)
	handleServerListDetail(t)

	th.Mux.HandleFunc("/servers/ef079b0c-e610-4dfb-b1aa-b49f07ac48e5/os-volume_attachments/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "DELETE")
		w.WriteHeader(http.StatusAccepted)
	})

	var gets int64
	th.Mux.HandleFunc("/volumes/"+volumeID, func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		w.Header().Add("Content-Type", "application/json")
		status := "detaching"
		if atomic.AddInt64(&gets, 1) > 1 {
			status = "available"
		}
		fmt.Fprintf(w, `{"volume": %s}`, volumeJSON(status, status != "available"))
	})

	c := testClient()
	vol, err := c.VolumeDetach(gocontext.TODO(), "scratch", "herp", 0)
	require.NoError(t, err)
	assert.Equal(t, "available", vol.Status)
	assert.Empty(t, vol.Attachments)
}

func TestVolumeDetach_NoAttachments(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	handleVolumeList(t, "available", false)

	c := testClient()
	_, err := c.VolumeDetach(gocontext.TODO(), "scratch", "herp", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no attachments")
}
