// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package levelzero

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dora-zhang/hwloc/pkg/common/utils"
	ze "github.com/dora-zhang/hwloc/pkg/levelzero"
	"github.com/dora-zhang/hwloc/pkg/levelzero/fake"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

func healthyDevice(bus uint8) *fake.Device {
	return &fake.Device{
		Props: ze.DeviceProperties{
			Type:                 ze.DeviceTypeGPU,
			NumSlices:            2,
			NumSubslicesPerSlice: 4,
			NumEUsPerSubslice:    8,
			NumThreadsPerEU:      7,
		},
		Sysman: ze.SysmanProperties{
			VendorName:   "Intel(R) Corporation",
			ModelName:    "Data Center GPU Max 1100",
			BrandName:    "Max",
			SerialNumber: "SN-0042",
			BoardNumber:  "BN-0007",
		},
		Groups: []ze.CommandQueueGroup{
			{NumQueues: 4, Flags: 0x1},
			{NumQueues: 2, Flags: 0x3},
			{NumQueues: 1, Flags: 0xc},
		},
		PCI: ze.PCIProperties{
			Address:      topology.PCIAddress{Bus: bus},
			MaxBandwidth: 64_000_000_000,
		},
	}
}

func osDevices(topo *topology.Topology) []*topology.Node {
	var nodes []*topology.Node
	topo.Walk(func(n *topology.Node, _ int) {
		if n.Type == topology.OSDevice {
			nodes = append(nodes, n)
		}
	})
	return nodes
}

var _ = Describe("LevelZero discovery", func() {
	var (
		log  *logrus.Logger
		hook *test.Hook
		topo *topology.Topology
	)

	BeforeEach(func() {
		log, hook = test.NewNullLogger()
		topo = topology.New()
	})

	discoverWith := func(api ze.API) {
		b := newBackend(api, utils.DiscoveryConfig{Sysman: "1"}, log)
		Expect(b.Discover(topo)).To(Succeed())
	}

	warnings := func() []string {
		var msgs []string
		for _, entry := range hook.AllEntries() {
			if entry.Level <= logrus.WarnLevel {
				msgs = append(msgs, entry.Message)
			}
		}
		return msgs
	}

	When("the runtime fails to initialize", func() {
		It("creates no nodes and logs the failure", func() {
			discoverWith(&fake.API{InitErr: errors.New("no runtime")})
			Expect(osDevices(topo)).To(BeEmpty())
			Expect(warnings()).To(ContainElement("failed to initialize Level Zero"))
		})

		It("stays silent when errors are hidden", func() {
			topo.SetHideErrors(true)
			discoverWith(&fake.API{InitErr: errors.New("no runtime")})
			Expect(osDevices(topo)).To(BeEmpty())
			Expect(hook.AllEntries()).To(BeEmpty())
		})
	})

	When("no drivers are reported", func() {
		It("creates no nodes and emits no diagnostics", func() {
			discoverWith(&fake.API{})
			Expect(osDevices(topo)).To(BeEmpty())
			Expect(warnings()).To(BeEmpty())
		})
	})

	When("the OSDevice type filter is KeepNone", func() {
		It("does not even initialize the runtime", func() {
			topo.SetTypeFilter(topology.OSDevice, topology.KeepNone)
			discoverWith(&fake.API{InitErr: errors.New("should not be reached")})
			Expect(osDevices(topo)).To(BeEmpty())
			Expect(hook.AllEntries()).To(BeEmpty())
		})
	})

	When("one driver reports two healthy devices with three queue groups", func() {
		It("creates two fully attributed nodes", func() {
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{healthyDevice(1), healthyDevice(2)}},
			}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(2))
			for i, node := range nodes {
				Expect(node.Parent()).ToNot(BeNil())
				Expect(node.Subtype).To(Equal("LevelZero"))
				Expect(node.InfoCount()).To(BeNumerically(">=", 12))

				groups, ok := node.Info("LevelZeroCQGroups")
				Expect(ok).To(BeTrue())
				Expect(groups).To(Equal("3"))
				for _, name := range []string{"LevelZeroCQGroup0", "LevelZeroCQGroup1", "LevelZeroCQGroup2"} {
					_, ok := node.Info(name)
					Expect(ok).To(BeTrue(), "missing %s", name)
				}
				_, ok = node.Info("LevelZeroCQGroup3")
				Expect(ok).To(BeFalse())

				deviceIndex, _ := node.Info("LevelZeroDriverDeviceIndex")
				Expect(deviceIndex).To(Equal([]string{"0", "1"}[i]))
			}
			Expect(nodes[0].Name).To(Equal("ze0"))
			Expect(nodes[1].Name).To(Equal("ze1"))

			first := nodes[0]
			for name, want := range map[string]string{
				"Backend":                             "LevelZero",
				"LevelZeroDriverIndex":                "0",
				"LevelZeroDeviceType":                 "GPU",
				"LevelZeroDeviceNumSlices":            "2",
				"LevelZeroDeviceNumSubslicesPerSlice": "4",
				"LevelZeroDeviceNumEUsPerSubslice":    "8",
				"LevelZeroDeviceNumThreadsPerEU":      "7",
				"LevelZeroVendor":                     "Intel(R) Corporation",
				"LevelZeroModel":                      "Data Center GPU Max 1100",
				"LevelZeroBrand":                      "Max",
				"LevelZeroSerialNumber":               "SN-0042",
				"LevelZeroBoardNumber":                "BN-0007",
				"LevelZeroCQGroup0":                   "4*0x1",
				"LevelZeroCQGroup1":                   "2*0x3",
				"LevelZeroCQGroup2":                   "1*0xc",
			} {
				value, ok := first.Info(name)
				Expect(ok).To(BeTrue(), "missing %s", name)
				Expect(value).To(Equal(want), "wrong value for %s", name)
			}
		})
	})

	When("devices span multiple drivers", func() {
		It("assigns globally unique monotonic names", func() {
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{healthyDevice(1)}},
				{DeviceList: []*fake.Device{healthyDevice(2), healthyDevice(3)}},
			}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(3))
			names := []string{}
			for _, node := range nodes {
				names = append(names, node.Name)
			}
			Expect(names).To(ConsistOf("ze0", "ze1", "ze2"))

			last := nodes[2]
			driverIndex, _ := last.Info("LevelZeroDriverIndex")
			Expect(driverIndex).To(Equal("1"))
			deviceIndex, _ := last.Info("LevelZeroDriverDeviceIndex")
			Expect(deviceIndex).To(Equal("1"))
		})

		It("skips a driver whose device query fails and keeps enumerating", func() {
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DevicesErr: errors.New("driver wedged")},
				{DeviceList: []*fake.Device{healthyDevice(1)}},
			}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].Name).To(Equal("ze0"))
		})
	})

	When("the management interface query fails", func() {
		brokenDevice := func() *fake.Device {
			d := healthyDevice(1)
			d.SysmanErr = errors.New("sysman unavailable")
			return d
		}

		It("still inserts the node with all basic attributes", func() {
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{brokenDevice()}},
			}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].Parent()).ToNot(BeNil())
			for _, name := range []string{
				"LevelZeroDeviceType",
				"LevelZeroDeviceNumSlices",
				"LevelZeroDeviceNumSubslicesPerSlice",
				"LevelZeroDeviceNumEUsPerSubslice",
				"LevelZeroDeviceNumThreadsPerEU",
			} {
				_, ok := nodes[0].Info(name)
				Expect(ok).To(BeTrue(), "missing %s", name)
			}
			_, ok := nodes[0].Info("LevelZeroVendor")
			Expect(ok).To(BeFalse())
		})

		It("warns at most once even when every device fails", func() {
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{brokenDevice(), brokenDevice(), brokenDevice()}},
			}})

			Expect(osDevices(topo)).To(HaveLen(3))
			Expect(warnings()).To(HaveLen(1))
		})

		It("words the diagnostic after the toggle negotiation outcome", func() {
			api := &fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{brokenDevice()}},
			}}

			b := &backend{api: api, log: log, sysman: sysmanSetLate, warned: map[string]struct{}{}}
			Expect(b.Discover(topo)).To(Succeed())
			lateWording := warnings()
			Expect(lateWording).To(HaveLen(1))
			Expect(lateWording[0]).To(ContainSubstring("set too late"))

			hook.Reset()
			topo = topology.New()
			b = &backend{api: api, log: log, sysman: sysmanDisabled, warned: map[string]struct{}{}}
			Expect(b.Discover(topo)).To(Succeed())
			disabledWording := warnings()
			Expect(disabledWording).To(HaveLen(1))
			Expect(disabledWording[0]).To(ContainSubstring("ZES_ENABLE_SYSMAN=0"))
			Expect(disabledWording[0]).ToNot(Equal(lateWording[0]))
		})

		It("suppresses the diagnostic when errors are hidden", func() {
			topo.SetHideErrors(true)
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{brokenDevice()}},
			}})
			Expect(osDevices(topo)).To(HaveLen(1))
			Expect(warnings()).To(BeEmpty())
		})
	})

	When("the management interface reports placeholder values", func() {
		It("skips attributes equal to Unknown in any case", func() {
			d := healthyDevice(1)
			d.Sysman.VendorName = "Unknown"
			d.Sysman.BrandName = "unknown"
			discoverWith(&fake.API{DriverList: []*fake.Driver{
				{DeviceList: []*fake.Device{d}},
			}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			_, ok := nodes[0].Info("LevelZeroVendor")
			Expect(ok).To(BeFalse())
			_, ok = nodes[0].Info("LevelZeroBrand")
			Expect(ok).To(BeFalse())
			model, ok := nodes[0].Info("LevelZeroModel")
			Expect(ok).To(BeTrue())
			Expect(model).To(Equal("Data Center GPU Max 1100"))
		})
	})

	Describe("device type mapping", func() {
		It("maps every known type and falls back to Unknown with a warning", func() {
			for typ, want := range map[ze.DeviceType]string{
				ze.DeviceTypeGPU:  "GPU",
				ze.DeviceTypeCPU:  "CPU",
				ze.DeviceTypeFPGA: "FPGA",
				ze.DeviceTypeMCA:  "MCA",
				ze.DeviceTypeVPU:  "VPU",
			} {
				d := healthyDevice(1)
				d.Props.Type = typ
				topo = topology.New()
				discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})
				got, _ := osDevices(topo)[0].Info("LevelZeroDeviceType")
				Expect(got).To(Equal(want))
			}
			Expect(warnings()).To(BeEmpty())

			d := healthyDevice(1)
			d.Props.Type = ze.DeviceType(42)
			topo = topology.New()
			discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})
			got, _ := osDevices(topo)[0].Info("LevelZeroDeviceType")
			Expect(got).To(Equal("Unknown"))
			Expect(warnings()).To(ContainElement("unexpected device type"))
		})
	})

	Describe("bus locality", func() {
		It("attaches the node under the matching PCI device and refines its link speed", func() {
			addr := topology.PCIAddress{Domain: 0, Bus: 0x4d, Device: 0, Function: 0}
			pciNode := topo.NewNode(topology.PCIDevice, addr.String())
			pciNode.PCI = &topology.PCIDeviceAttr{Address: addr}
			Expect(topo.Insert(topo.Root(), pciNode)).To(Succeed())

			d := healthyDevice(0)
			d.PCI = ze.PCIProperties{Address: addr, MaxBandwidth: 64_000_000_000}
			discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].Parent()).To(Equal(pciNode))
			Expect(pciNode.PCI.LinkSpeed).To(BeNumerically("==", 64))
		})

		It("leaves the link speed alone when no bandwidth is reported", func() {
			addr := topology.PCIAddress{Bus: 0x4d}
			pciNode := topo.NewNode(topology.PCIDevice, addr.String())
			pciNode.PCI = &topology.PCIDeviceAttr{Address: addr}
			Expect(topo.Insert(topo.Root(), pciNode)).To(Succeed())

			d := healthyDevice(0)
			d.PCI = ze.PCIProperties{Address: addr, MaxBandwidth: 0}
			discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})

			Expect(osDevices(topo)[0].Parent()).To(Equal(pciNode))
			Expect(pciNode.PCI.LinkSpeed).To(BeZero())
		})

		It("falls back to the root when the bus address matches nothing", func() {
			d := healthyDevice(0x7e)
			discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].Parent()).To(Equal(topo.Root()))
		})

		It("falls back to the root when the bus query fails", func() {
			d := healthyDevice(1)
			d.PCIErr = errors.New("pci query failed")
			discoverWith(&fake.API{DriverList: []*fake.Driver{{DeviceList: []*fake.Device{d}}}})

			nodes := osDevices(topo)
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].Parent()).To(Equal(topo.Root()))
		})
	})
})

var _ = Describe("sysman toggle negotiation", func() {
	var log *logrus.Logger

	BeforeEach(func() {
		log, _ = test.NewNullLogger()
		Expect(os.Unsetenv(sysmanEnv)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Unsetenv(sysmanEnv)).To(Succeed())
	})

	It("enables the toggle itself when unset and records it was set late", func() {
		state := negotiateSysman(utils.DiscoveryConfig{}, log)
		Expect(state).To(Equal(sysmanSetLate))
		Expect(os.Getenv(sysmanEnv)).To(Equal("1"))
	})

	It("records an explicitly disabled toggle", func() {
		Expect(os.Setenv(sysmanEnv, "0")).To(Succeed())
		Expect(negotiateSysman(utils.DiscoveryConfig{}, log)).To(Equal(sysmanDisabled))
	})

	It("needs no special state when the toggle was enabled early", func() {
		Expect(os.Setenv(sysmanEnv, "1")).To(Succeed())
		Expect(negotiateSysman(utils.DiscoveryConfig{}, log)).To(Equal(sysmanOK))
	})

	It("lets the config override the environment", func() {
		Expect(os.Setenv(sysmanEnv, "1")).To(Succeed())
		Expect(negotiateSysman(utils.DiscoveryConfig{Sysman: "0"}, log)).To(Equal(sysmanDisabled))
		Expect(os.Getenv(sysmanEnv)).To(Equal("0"))

		Expect(negotiateSysman(utils.DiscoveryConfig{Sysman: "1"}, log)).To(Equal(sysmanOK))
		Expect(os.Getenv(sysmanEnv)).To(Equal("1"))
	})
})
